package infra

import (
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodecommit"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecr"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

type CodeBuildStackProps struct {
	awscdk.StackProps
	Source       awscodecommit.IRepository
	Branch       string
	Repositories map[string]awsecr.Repository
	Functions    map[string]awslambda.DockerImageFunction
	ImageTag     string
}

type CodeBuild struct {
	Stack   awscdk.Stack
	Project awscodebuild.Project
}

// NewCodeBuildStack builds the stage images from buildspec.yml, pushes them
// and updates the function code.
func NewCodeBuildStack(scope constructs.Construct, id string, props *CodeBuildStackProps) *CodeBuild {
	stack := awscdk.NewStack(scope, &id, &props.StackProps)

	branch, tag := props.Branch, props.ImageTag
	if branch == "" {
		branch = "main"
	}
	if tag == "" {
		tag = "latest"
	}

	vars := map[string]*awscodebuild.BuildEnvironmentVariable{
		"AWS_ACCOUNT_ID": {Value: awscdk.Aws_ACCOUNT_ID()},
		"REGION":         {Value: awscdk.Aws_REGION()},
	}
	for _, stage := range Stages {
		prefix := strings.ToUpper(stage)
		vars[prefix+"_IMAGE_TAG"] = &awscodebuild.BuildEnvironmentVariable{Value: jsii.String(tag)}
		if repo, ok := props.Repositories[stage]; ok {
			vars[prefix+"_IMAGE_REPO_NAME"] = &awscodebuild.BuildEnvironmentVariable{Value: repo.RepositoryName()}
		}
		if fn, ok := props.Functions[stage]; ok {
			vars[prefix+"_LAMBDA_FUNCTION_NAME"] = &awscodebuild.BuildEnvironmentVariable{Value: fn.FunctionName()}
		}
	}

	project := awscodebuild.NewProject(stack, jsii.String("BuildProject"), &awscodebuild.ProjectProps{
		Source: awscodebuild.Source_CodeCommit(&awscodebuild.CodeCommitSourceProps{
			Repository:  props.Source,
			BranchOrRef: jsii.String(branch),
		}),
		Environment: &awscodebuild.BuildEnvironment{
			BuildImage: awscodebuild.LinuxBuildImage_STANDARD_7_0(),
			// docker builds need it
			Privileged: jsii.Bool(true),
		},
		EnvironmentVariables: &vars,
		BuildSpec:            awscodebuild.BuildSpec_FromSourceFilename(jsii.String("buildspec.yml")),
	})

	for _, stage := range Stages {
		if repo, ok := props.Repositories[stage]; ok {
			repo.GrantPullPush(project)
		}
	}

	var fnArns []*string
	for _, stage := range Stages {
		if fn, ok := props.Functions[stage]; ok {
			fnArns = append(fnArns, fn.FunctionArn())
		}
	}
	if len(fnArns) > 0 {
		project.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Actions:   jsii.Strings("lambda:UpdateFunctionCode"),
			Resources: &fnArns,
		}))
	}

	awscdk.NewCfnOutput(stack, jsii.String("BuildProjectArn"), &awscdk.CfnOutputProps{
		Value: project.ProjectArn(),
	})

	return &CodeBuild{Stack: stack, Project: project}
}
