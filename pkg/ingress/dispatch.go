package ingress

import (
	"context"
	"fmt"

	"github.com/abcxyz/pkg/logging"

	"github.com/LLNL/hubcast/pkg/gitwire"
	"github.com/LLNL/hubcast/pkg/router"
	gosync "github.com/LLNL/hubcast/pkg/sync"
)

// dispatchContext carries everything a router callback needs for one
// event: already-authenticated clients and the forge-agnostic event
// fields parsed out of the webhook payload. Building it is ingress's
// job so pkg/sync and pkg/router stay free of forge-specific types.
type dispatchContext struct {
	wire     *gitwire.Client
	srcURL   string
	srcCreds gitwire.Credentials
	dest     gosync.DestProject

	prChecker     gosync.BranchPRChecker
	registrar     gosync.WebhookRegistrar
	callbackURL   string
	webhookSecret string
	push          gosync.PushEvent

	visChecker gosync.PRVisibilityChecker
	prSync     gosync.PRSyncEvent

	prFetcher gosync.CommentPRFetcher
	commenter gosync.Commenter
	runner    gosync.PipelineRunner
	comment   gosync.CommentEvent

	checkClient gosync.SourceCheckClient
	srcService  string
	sha         string
	checkName   string
	status      string
	detailsURL  string
}

// buildRouterTable wires one router.Table covering every sync trigger.
// Callbacks type-assert event.Payload back to *dispatchContext, which
// the ingress handlers construct per request.
func buildRouterTable() *router.Table {
	onError := func(ctx context.Context, kind string, err error) {
		logging.FromContext(ctx).ErrorContext(ctx, "sync callback failed", "kind", kind, "error", err)
	}
	table := router.New(onError)

	table.On("push", func(ctx context.Context, event router.Event) error {
		dc, ok := event.Payload.(*dispatchContext)
		if !ok {
			return fmt.Errorf("push event carried unexpected payload type %T", event.Payload)
		}
		return gosync.HandlePush(ctx, dc.wire, dc.srcURL, dc.srcCreds, dc.prChecker, dc.registrar, dc.callbackURL, dc.webhookSecret, dc.dest, dc.push)
	})

	prSyncHandler := func(ctx context.Context, event router.Event) error {
		dc, ok := event.Payload.(*dispatchContext)
		if !ok {
			return fmt.Errorf("pull-request event carried unexpected payload type %T", event.Payload)
		}
		return gosync.HandlePRSync(ctx, dc.wire, dc.srcURL, dc.srcCreds, dc.visChecker, dc.dest, dc.prSync)
	}
	prCloseHandler := func(ctx context.Context, event router.Event) error {
		dc, ok := event.Payload.(*dispatchContext)
		if !ok {
			return fmt.Errorf("pull-request event carried unexpected payload type %T", event.Payload)
		}
		return gosync.HandlePRClose(ctx, dc.wire, dc.dest, dc.prSync)
	}

	for _, action := range []string{"opened", "reopened", "synchronize"} {
		table.OnAttribute("pull_request", "action", action, prSyncHandler)
	}
	table.OnAttribute("pull_request", "action", "closed", prCloseHandler)

	for _, action := range []string{"open", "reopen", "update"} {
		table.OnAttribute("merge_request", "action", action, prSyncHandler)
	}
	table.OnAttribute("merge_request", "action", "close", prCloseHandler)

	table.OnAttribute("issue_comment", "action", "created", func(ctx context.Context, event router.Event) error {
		dc, ok := event.Payload.(*dispatchContext)
		if !ok {
			return fmt.Errorf("issue-comment event carried unexpected payload type %T", event.Payload)
		}
		return gosync.HandleComment(ctx, dc.wire, dc.srcURL, dc.srcCreds, dc.prFetcher, dc.commenter, dc.runner, dc.dest, dc.comment)
	})

	table.On("pipeline_status", func(ctx context.Context, event router.Event) error {
		dc, ok := event.Payload.(*dispatchContext)
		if !ok {
			return fmt.Errorf("pipeline event carried unexpected payload type %T", event.Payload)
		}
		return gosync.RelayStatus(ctx, dc.checkClient, dc.srcService, dc.sha, dc.checkName, dc.status, dc.detailsURL)
	})

	return table
}
