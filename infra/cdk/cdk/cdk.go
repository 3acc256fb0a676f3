package main

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
	"github.com/basewarphq/bwpromote/infra/cdk"
)

func main() {
	defer jsii.Close()
	app := awscdk.NewApp(nil)

	bwcdkutil.SetupApp(app, bwcdkutil.AppConfig{
		Prefix: bwcdkutil.ContextPrefix,
	},
		cdk.NewShared,
		cdk.NewEnvironment,
	)

	app.Synth(nil)
}
