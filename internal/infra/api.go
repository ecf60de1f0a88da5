package infra

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

type APIStackProps struct {
	awscdk.StackProps
	Predict awslambda.IFunction
}

type API struct {
	Stack   awscdk.Stack
	RestAPI awsapigateway.LambdaRestApi
}

// NewAPIStack exposes GET /predict on a REST API.
func NewAPIStack(scope constructs.Construct, id string, props *APIStackProps) *API {
	stack := awscdk.NewStack(scope, &id, &props.StackProps)

	api := awsapigateway.NewLambdaRestApi(stack, jsii.String("PredictAPI"), &awsapigateway.LambdaRestApiProps{
		Handler: props.Predict,
		Proxy:   jsii.Bool(false),
	})
	api.Root().
		AddResource(jsii.String("predict"), nil).
		AddMethod(jsii.String("GET"), awsapigateway.NewLambdaIntegration(props.Predict, nil), nil)

	awscdk.NewCfnOutput(stack, jsii.String("ApiEndpoint"), &awscdk.CfnOutputProps{
		Value:       api.Url(),
		Description: jsii.String("URL of the prediction API"),
	})
	awscdk.NewCfnOutput(stack, jsii.String("PredictFunctionArn"), &awscdk.CfnOutputProps{
		Value: props.Predict.FunctionArn(),
	})

	return &API{Stack: stack, RestAPI: api}
}
