package cdk

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkcache"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkcerts"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkdatabase"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkdns"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkedge"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdknetwork"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkweb"
)

// Environment is one region's share of an environment.
type Environment struct {
	Network  bwcdknetwork.Network
	Web      bwcdkweb.Web
	Cache    bwcdkcache.Cache
	Database bwcdkdatabase.Database
	DNS      bwcdkdns.DNS

	// Edge is nil outside the primary region.
	Edge bwcdkedge.Edge
}

// NewEnvironment composes an environment's resources in stack's region. The
// hosted zone and certificate already exist; both arrive through context.
func NewEnvironment(stack awscdk.Stack, env *bwcdkutil.EnvironmentConfig) {
	newEnvironment(stack, env)
}

func newEnvironment(stack awscdk.Stack, _ *bwcdkutil.EnvironmentConfig) *Environment {
	e := &Environment{}
	e.Network = bwcdknetwork.New(stack, bwcdknetwork.Props{})
	e.Web = bwcdkweb.New(stack, bwcdkweb.Props{Network: e.Network})

	e.Cache = bwcdkcache.New(stack, bwcdkcache.Props{Network: e.Network})
	e.Cache.AllowFrom(e.Web.AutoScalingGroup())

	e.Database = bwcdkdatabase.New(stack, bwcdkdatabase.Props{Network: e.Network})
	e.Database.AllowFrom(e.Web.AutoScalingGroup())

	e.DNS = bwcdkdns.New(stack, bwcdkdns.Props{})

	cfg := bwcdkutil.ConfigFromScope(stack)
	if !cfg.IsPrimaryRegionStack(stack) {
		return e
	}

	var failover *string
	if cfg.SecondaryRegion != "" {
		failover = bwcdkweb.LookupAlbDNSName(stack, cfg.SecondaryRegion)
	}

	e.Edge = bwcdkedge.New(stack, bwcdkedge.Props{
		LoadBalancer:    e.Web.LoadBalancer(),
		StaticBucket:    e.Web.StaticBucket(),
		Certificate:     bwcdkcerts.New(stack, bwcdkcerts.Props{}).SiteCertificate(),
		DNS:             e.DNS,
		FailoverDNSName: failover,
		DemoPath:        bwcdkweb.DemoPage,
	})
	return e
}
