package worker

import (
	"context"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/rpc/common"
)

// handle executes one call on the hosted adapter and builds the reply
func handle(ctx context.Context, a adapter.Adapter, req common.Request) *common.Message {
	switch r := req.(type) {
	case common.InitRequest:
		return common.NewResponse(common.MsgTInit, nil, a.Init(ctx))
	case common.WriteDocsRequest:
		return common.NewResponse(common.MsgTWriteDocs, nil, a.WriteDocs(ctx, r.Docs))
	case common.FindDocsRequest:
		docs, err := a.FindDocs(ctx, r.IDs)
		return common.NewResponse(common.MsgTFindDocs, docs, err)
	case common.QueryRegexRequest:
		docs, err := a.QueryRegex(ctx, r.Pattern)
		return common.NewResponse(common.MsgTQueryRegex, docs, err)
	case common.QueryIndexRequest:
		docs, err := a.QueryIndex(ctx, r.MinAge)
		return common.NewResponse(common.MsgTQueryIndex, docs, err)
	case common.QueryRegexIndexRequest:
		docs, err := a.QueryRegexIndex(ctx, r.Pattern, r.MinAge)
		return common.NewResponse(common.MsgTQueryRegexIndex, docs, err)
	case common.ClearRequest:
		return common.NewResponse(common.MsgTClear, nil, a.Clear(ctx))
	default:
		// the request set is closed, a new variant must be added above
		return common.NewErrorResponse(adapter.RetCUnsupportedOperation, "unsupported request")
	}
}
