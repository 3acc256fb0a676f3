// Package bwcdkrepo provides the source repository the pipeline promotes from.
package bwcdkrepo

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodecommit"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// DefaultRepositoryName is used when Props leaves the name empty.
const DefaultRepositoryName = "assignmentRepo"

// OutputCloneURLHTTP is the stack output holding the HTTPS clone URL.
const OutputCloneURLHTTP = "RepositoryHttp"

// ExportCloneURLHTTP is the export name of the clone URL output.
const ExportCloneURLHTTP = "repositoryHttp"

// Repo provides access to the source repository.
type Repo interface {
	// Repository returns the CodeCommit repository.
	Repository() awscodecommit.IRepository
}

// Props configures the Repo construct.
type Props struct {
	// RepositoryName defaults to DefaultRepositoryName.
	RepositoryName *string
}

type repo struct {
	repository awscodecommit.IRepository
}

// New creates the repository and exports its clone URL.
func New(scope constructs.Construct, props Props) Repo {
	scope = constructs.NewConstruct(scope, jsii.String("Repo"))

	name := props.RepositoryName
	if name == nil || *name == "" {
		name = jsii.String(DefaultRepositoryName)
	}

	repository := awscodecommit.NewRepository(scope, jsii.String("Repository"), &awscodecommit.RepositoryProps{
		RepositoryName: name,
		Description:    jsii.String("Source of the promoted application"),
	})
	repository.ApplyRemovalPolicy(awscdk.RemovalPolicy_RETAIN)

	out := awscdk.NewCfnOutput(scope, jsii.String("CloneUrlHttp"), &awscdk.CfnOutputProps{
		Value:       repository.RepositoryCloneUrlHttp(),
		Description: jsii.String("CodeCommit repository URL"),
		ExportName:  jsii.String(ExportCloneURLHTTP),
	})
	out.OverrideLogicalId(jsii.String(OutputCloneURLHTTP))

	return &repo{repository: repository}
}

func (r *repo) Repository() awscodecommit.IRepository {
	return r.repository
}
