package main

import (
	"fmt"
	"os"

	"HoopsCast/internal/infra"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)

	stage := "dev"
	if v, ok := app.Node().TryGetContext(jsii.String("stage")).(string); ok && v != "" {
		stage = v
	}
	sprops := awscdk.StackProps{Env: env()}
	name := func(s string) string { return fmt.Sprintf("HoopsCast-%s-%s", s, stage) }

	storage := infra.NewStorageStack(app, name("Storage"), &infra.StorageStackProps{
		StackProps: sprops,
		Prefix:     "hoopscast-" + stage,
	})

	extra := map[string]string{"ENVIRONMENT": stage}
	if key := os.Getenv("NBA_API_KEY"); key != "" {
		extra["NBA_API_KEY"] = key
	}
	pipeline := infra.NewPipelineStack(app, name("Pipeline"), &infra.PipelineStackProps{
		StackProps:   sprops,
		Bucket:       storage.Bucket,
		Repositories: storage.Repositories,
		Env:          extra,
	})

	infra.NewAPIStack(app, name("API"), &infra.APIStackProps{
		StackProps: sprops,
		Predict:    pipeline.Functions[infra.StagePredict],
	})

	infra.NewCodeBuildStack(app, name("CodeBuild"), &infra.CodeBuildStackProps{
		StackProps:   sprops,
		Source:       storage.Source,
		Repositories: storage.Repositories,
		Functions:    pipeline.Functions,
	})

	app.Synth(nil)
}

// env lets the CLI pick account and region unless they are pinned.
func env() *awscdk.Environment {
	account, region := os.Getenv("CDK_DEFAULT_ACCOUNT"), os.Getenv("CDK_DEFAULT_REGION")
	if account == "" && region == "" {
		return nil
	}
	e := &awscdk.Environment{}
	if account != "" {
		e.Account = jsii.String(account)
	}
	if region != "" {
		e.Region = jsii.String(region)
	}
	return e
}
