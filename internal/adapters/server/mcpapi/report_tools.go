package mcpapi

import (
	"context"
	"fmt"

	"github.com/evanschultz/cardclock/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerReportTools registers `cardclock.list_report` and `cardclock.list_report_runs`.
func registerReportTools(srv *mcpserver.MCPServer, service common.TimeInListService) {
	srv.AddTool(
		mcp.NewTool(
			"cardclock.list_report",
			mcp.WithDescription("Generate the per-member CSV report for one list and record the run."),
			mcp.WithString("list_id", mcp.Required(), mcp.Description("Trello list identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			listID, err := req.RequireString("list_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rep, err := service.ListReport(ctx, listID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(rep)
			if err != nil {
				return nil, fmt.Errorf("encode list_report result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"cardclock.list_report_runs",
			mcp.WithDescription("List previously generated reports for one list, newest first."),
			mcp.WithString("list_id", mcp.Required(), mcp.Description("Trello list identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum runs to return"), mcp.Min(1), mcp.Max(200)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			listID, err := req.RequireString("list_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			runs, err := service.ListReportRuns(ctx, listID, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"runs": runs,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_report_runs result: %w", err)
			}
			return result, nil
		},
	)
}
