package infra

import (
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
)

func synthAll(t *testing.T) (*Storage, *Pipeline, *API, *CodeBuild) {
	t.Helper()
	app := awscdk.NewApp(nil)
	storage := NewStorageStack(app, "Storage", &StorageStackProps{Prefix: "test"})
	pipeline := NewPipelineStack(app, "Pipeline", &PipelineStackProps{
		Bucket:       storage.Bucket,
		Repositories: storage.Repositories,
		Env:          map[string]string{"ENVIRONMENT": "test"},
	})
	api := NewAPIStack(app, "API", &APIStackProps{Predict: pipeline.Functions[StagePredict]})
	cb := NewCodeBuildStack(app, "CodeBuild", &CodeBuildStackProps{
		Source:       storage.Source,
		Repositories: storage.Repositories,
		Functions:    pipeline.Functions,
	})
	return storage, pipeline, api, cb
}

func TestStorageStack(t *testing.T) {
	storage, _, _, _ := synthAll(t)
	tpl := assertions.Template_FromStack(storage.Stack, nil)

	tpl.ResourceCountIs(jsii.String("AWS::S3::Bucket"), jsii.Number(1))
	tpl.ResourceCountIs(jsii.String("AWS::ECR::Repository"), jsii.Number(3))
	tpl.ResourceCountIs(jsii.String("AWS::CodeCommit::Repository"), jsii.Number(1))
	tpl.HasResourceProperties(jsii.String("AWS::S3::Bucket"), map[string]interface{}{
		"PublicAccessBlockConfiguration": map[string]interface{}{
			"BlockPublicAcls":       true,
			"BlockPublicPolicy":     true,
			"IgnorePublicAcls":      true,
			"RestrictPublicBuckets": true,
		},
	})
	tpl.HasResourceProperties(jsii.String("AWS::ECR::Repository"), map[string]interface{}{
		"RepositoryName": "test-train",
	})
}

func TestPipelineStackSizesFunctions(t *testing.T) {
	_, pipeline, _, _ := synthAll(t)
	tpl := assertions.Template_FromStack(pipeline.Stack, nil)

	tpl.ResourceCountIs(jsii.String("AWS::Lambda::Function"), jsii.Number(3))
	tpl.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]interface{}{
		"MemorySize":  3008,
		"Timeout":     600,
		"PackageType": "Image",
	})
	tpl.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]interface{}{
		"MemorySize": 1024,
		"Timeout":    60,
	})
	tpl.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]interface{}{
		"Environment": map[string]interface{}{
			"Variables": assertions.Match_ObjectLike(&map[string]interface{}{
				"TRAIN_FILE_NAME":   "games.csv",
				"PREDICT_FILE_NAME": "to_predict.csv",
				"ENVIRONMENT":       "test",
			}),
		},
	})
	tpl.HasResourceProperties(jsii.String("AWS::Events::Rule"), map[string]interface{}{
		"ScheduleExpression": "cron(0 10 * * ? *)",
	})
}

func TestAPIStackRoutesPredict(t *testing.T) {
	_, _, api, _ := synthAll(t)
	tpl := assertions.Template_FromStack(api.Stack, nil)

	tpl.ResourceCountIs(jsii.String("AWS::ApiGateway::RestApi"), jsii.Number(1))
	tpl.HasResourceProperties(jsii.String("AWS::ApiGateway::Resource"), map[string]interface{}{
		"PathPart": "predict",
	})
	tpl.HasResourceProperties(jsii.String("AWS::ApiGateway::Method"), map[string]interface{}{
		"HttpMethod": "GET",
	})
}

func TestCodeBuildStackIsPrivileged(t *testing.T) {
	_, _, _, cb := synthAll(t)
	tpl := assertions.Template_FromStack(cb.Stack, nil)

	tpl.HasResourceProperties(jsii.String("AWS::CodeBuild::Project"), map[string]interface{}{
		"Environment": assertions.Match_ObjectLike(&map[string]interface{}{
			"PrivilegedMode": true,
		}),
	})
}
