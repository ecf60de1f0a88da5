package infra

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecr"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

type PipelineStackProps struct {
	awscdk.StackProps
	Bucket       awss3.IBucket
	Repositories map[string]awsecr.Repository
	// ImageTag defaults to latest.
	ImageTag string
	// ETLSchedule is a cron in UTC; nil runs the ETL daily at 10:00.
	ETLSchedule *awsevents.CronOptions
	// Env is merged into every function's environment.
	Env map[string]string
}

type Pipeline struct {
	Stack     awscdk.Stack
	Functions map[string]awslambda.DockerImageFunction
}

type functionSize struct {
	memory  float64
	timeout awscdk.Duration
}

// functionSizes sizes each stage. Training needs the most memory.
func functionSizes() map[string]functionSize {
	return map[string]functionSize{
		StageETL:     {memory: 1024, timeout: awscdk.Duration_Minutes(jsii.Number(5))},
		StageTrain:   {memory: 3008, timeout: awscdk.Duration_Minutes(jsii.Number(10))},
		StagePredict: {memory: 1024, timeout: awscdk.Duration_Minutes(jsii.Number(1))},
	}
}

// NewPipelineStack creates one container function per stage and the daily
// ETL trigger.
func NewPipelineStack(scope constructs.Construct, id string, props *PipelineStackProps) *Pipeline {
	stack := awscdk.NewStack(scope, &id, &props.StackProps)

	tag := props.ImageTag
	if tag == "" {
		tag = "latest"
	}

	env := map[string]*string{
		"S3_BUCKET":         props.Bucket.BucketName(),
		"TRAIN_FILE_NAME":   jsii.String("games.csv"),
		"PREDICT_FILE_NAME": jsii.String("to_predict.csv"),
		"ML_MODEL_FILE":     jsii.String("best_model.json.zst"),
		"LOG_FORMAT":        jsii.String("json"),
	}
	for k, v := range props.Env {
		env[k] = jsii.String(v)
	}

	sizes := functionSizes()
	fns := make(map[string]awslambda.DockerImageFunction, len(Stages))
	for _, stage := range Stages {
		size := sizes[stage]
		repo := props.Repositories[stage]

		role := awsiam.NewRole(stack, jsii.String(stage+"-role"), &awsiam.RoleProps{
			AssumedBy: awsiam.NewServicePrincipal(jsii.String("lambda.amazonaws.com"), nil),
			ManagedPolicies: &[]awsiam.IManagedPolicy{
				awsiam.ManagedPolicy_FromAwsManagedPolicyName(jsii.String("service-role/AWSLambdaBasicExecutionRole")),
			},
		})
		role.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Effect:    awsiam.Effect_ALLOW,
			Actions:   jsii.Strings("s3:GetObject", "s3:PutObject"),
			Resources: &[]*string{props.Bucket.BucketArn(), props.Bucket.ArnForObjects(jsii.String("*"))},
		}))
		repo.GrantPull(role)

		fnEnv := make(map[string]*string, len(env))
		for k, v := range env {
			fnEnv[k] = v
		}
		fns[stage] = awslambda.NewDockerImageFunction(stack, jsii.String(stage+"-function"), &awslambda.DockerImageFunctionProps{
			Code: awslambda.DockerImageCode_FromEcr(repo, &awslambda.EcrImageCodeProps{
				TagOrDigest: jsii.String(tag),
			}),
			Role:        role,
			Environment: &fnEnv,
			MemorySize:  jsii.Number(size.memory),
			Timeout:     size.timeout,
			Description: jsii.String("HoopsCast " + stage + " stage"),
		})

		awscdk.NewCfnOutput(stack, jsii.String(stage+"FunctionArn"), &awscdk.CfnOutputProps{
			Value: fns[stage].FunctionArn(),
		})
	}

	schedule := props.ETLSchedule
	if schedule == nil {
		schedule = &awsevents.CronOptions{Minute: jsii.String("0"), Hour: jsii.String("10")}
	}
	awsevents.NewRule(stack, jsii.String("etl-schedule"), &awsevents.RuleProps{
		Schedule: awsevents.Schedule_Cron(schedule),
		Targets:  &[]awsevents.IRuleTarget{awseventstargets.NewLambdaFunction(fns[StageETL], nil)},
	})

	return &Pipeline{Stack: stack, Functions: fns}
}
