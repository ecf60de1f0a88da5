package infra

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodecommit"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecr"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// Stage names shared by the ECR repositories, functions and build variables.
const (
	StageETL     = "etl"
	StageTrain   = "train"
	StagePredict = "predict"
)

// Stages lists every pipeline stage in run order.
var Stages = []string{StageETL, StageTrain, StagePredict}

type StorageStackProps struct {
	awscdk.StackProps
	// Prefix names the ECR and CodeCommit repositories.
	Prefix string
}

// Storage holds what the other stacks reference.
type Storage struct {
	Stack        awscdk.Stack
	Bucket       awss3.Bucket
	Source       awscodecommit.Repository
	Repositories map[string]awsecr.Repository
}

// NewStorageStack creates the data bucket, the source repository and one
// image repository per stage.
func NewStorageStack(scope constructs.Construct, id string, props *StorageStackProps) *Storage {
	var sprops awscdk.StackProps
	prefix := "hoopscast"
	if props != nil {
		sprops = props.StackProps
		if props.Prefix != "" {
			prefix = props.Prefix
		}
	}
	stack := awscdk.NewStack(scope, &id, &sprops)

	bucket := awss3.NewBucket(stack, jsii.String("DataBucket"), &awss3.BucketProps{
		AccessControl:     awss3.BucketAccessControl_BUCKET_OWNER_FULL_CONTROL,
		Encryption:        awss3.BucketEncryption_S3_MANAGED,
		BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
		EnforceSSL:        jsii.Bool(true),
		RemovalPolicy:     awscdk.RemovalPolicy_RETAIN,
	})

	source := awscodecommit.NewRepository(stack, jsii.String("SourceRepository"), &awscodecommit.RepositoryProps{
		RepositoryName: jsii.String(prefix),
		Description:    jsii.String("HoopsCast pipeline sources"),
	})

	repos := make(map[string]awsecr.Repository, len(Stages))
	for _, stage := range Stages {
		repos[stage] = awsecr.NewRepository(stack, jsii.String(stage+"-repository"), &awsecr.RepositoryProps{
			RepositoryName: jsii.String(prefix + "-" + stage),
			LifecycleRules: &[]*awsecr.LifecycleRule{{
				MaxImageCount: jsii.Number(10),
			}},
		})
	}

	awscdk.NewCfnOutput(stack, jsii.String("BucketArn"), &awscdk.CfnOutputProps{
		Value:       bucket.BucketArn(),
		Description: jsii.String("ARN of the data bucket"),
	})
	awscdk.NewCfnOutput(stack, jsii.String("SourceRepositoryArn"), &awscdk.CfnOutputProps{
		Value: source.RepositoryArn(),
	})
	for _, stage := range Stages {
		awscdk.NewCfnOutput(stack, jsii.String(stage+"RepositoryArn"), &awscdk.CfnOutputProps{
			Value: repos[stage].RepositoryArn(),
		})
	}

	return &Storage{Stack: stack, Bucket: bucket, Source: source, Repositories: repos}
}
