package cdk

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkrepo"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkstate"
)

// Shared is the orchestration account's infrastructure.
type Shared struct {
	Repo  bwcdkrepo.Repo
	State bwcdkstate.State
}

// NewShared creates the source repository and the pipeline state resources.
func NewShared(stack awscdk.Stack) {
	newShared(stack)
}

func newShared(stack awscdk.Stack) *Shared {
	return &Shared{
		Repo:  bwcdkrepo.New(stack, bwcdkrepo.Props{}),
		State: bwcdkstate.New(stack, bwcdkstate.Props{}),
	}
}
