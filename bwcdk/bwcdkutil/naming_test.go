//nolint:paralleltest // jsii runtime doesn't support parallel tests
package bwcdkutil_test

import (
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

func TestResourceName_DeploymentStack(t *testing.T) {
	defer jsii.Close()

	tests := []struct {
		name   string
		label  string
		casing bwcdkutil.Casing
		want   string
	}{
		{
			name:   "camel case",
			label:  "WebAlb",
			casing: bwcdkutil.CasingCamel,
			want:   "TestqualTestWebAlb",
		},
		{
			name:   "lower camel case",
			label:  "WebAlb",
			casing: bwcdkutil.CasingLowerCamel,
			want:   "testqualTestWebAlb",
		},
		{
			name:   "snake case",
			label:  "WebAlb",
			casing: bwcdkutil.CasingSnake,
			want:   "testqual_test_web_alb",
		},
		{
			name:   "screaming snake case",
			label:  "WebAlb",
			casing: bwcdkutil.CasingScreamingSnake,
			want:   "TESTQUAL_TEST_WEB_ALB",
		},
		{
			name:   "kebab case",
			label:  "WebAlb",
			casing: bwcdkutil.CasingKebab,
			want:   "testqual-test-web-alb",
		},
		{
			name:   "screaming kebab case",
			label:  "WebAlb",
			casing: bwcdkutil.CasingScreamingKebab,
			want:   "TESTQUAL-TEST-WEB-ALB",
		},
		{
			name:   "kebab label converted to camel",
			label:  "static-site-bucket",
			casing: bwcdkutil.CasingCamel,
			want:   "TestqualTestStaticSiteBucket",
		},
		{
			name:   "snake label converted to kebab",
			label:  "static_site_bucket",
			casing: bwcdkutil.CasingKebab,
			want:   "testqual-test-static-site-bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := awscdk.NewApp(nil)

			cfg := &bwcdkutil.Config{
				Qualifier:            "testqual",
				PrimaryRegion:        "eu-west-1",
				OrchestrationAccount: "111111111111",
			}
			bwcdkutil.StoreConfig(app, cfg)

			stack := awscdk.NewStack(app, jsii.String("TestStack"), &awscdk.StackProps{
				Env: &awscdk.Environment{
					Region: jsii.String("eu-west-1"),
				},
			})
			bwcdkutil.StoreDeploymentIdent(stack, "Test")

			got := bwcdkutil.ResourceName(stack, tt.label, tt.casing)
			if got != tt.want {
				t.Errorf("ResourceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResourceName_SharedStack(t *testing.T) {
	defer jsii.Close()

	tests := []struct {
		name   string
		label  string
		casing bwcdkutil.Casing
		want   string
	}{
		{
			name:   "camel case without deployment",
			label:  "Repository",
			casing: bwcdkutil.CasingCamel,
			want:   "TestqualRepository",
		},
		{
			name:   "kebab case without deployment",
			label:  "Repository",
			casing: bwcdkutil.CasingKebab,
			want:   "testqual-repository",
		},
		{
			name:   "snake case without deployment",
			label:  "Repository",
			casing: bwcdkutil.CasingSnake,
			want:   "testqual_repository",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := awscdk.NewApp(nil)

			cfg := &bwcdkutil.Config{
				Qualifier:            "testqual",
				PrimaryRegion:        "eu-west-1",
				OrchestrationAccount: "111111111111",
			}
			bwcdkutil.StoreConfig(app, cfg)

			stack := awscdk.NewStack(app, jsii.String("TestStack"), &awscdk.StackProps{
				Env: &awscdk.Environment{
					Region: jsii.String("eu-west-1"),
				},
			})

			got := bwcdkutil.ResourceName(stack, tt.label, tt.casing)
			if got != tt.want {
				t.Errorf("ResourceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvironmentIdent(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]string{"test": "Test", "prod": "Prod"} {
		if got := bwcdkutil.EnvironmentIdent(name); got != want {
			t.Errorf("EnvironmentIdent(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestStackNames(t *testing.T) {
	t.Parallel()
	if got := bwcdkutil.DeploymentStackName("demo", "Euw1", "Prod"); got != "demoEuw1Prod" {
		t.Errorf("DeploymentStackName = %q", got)
	}
	if got := bwcdkutil.SharedStackName("demo", "Euw1"); got != "demoEuw1Shared" {
		t.Errorf("SharedStackName = %q", got)
	}
}
