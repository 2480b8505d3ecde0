package safety

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matching/internal/server"
)

const ServiceName = "muzz.safety.v1.SafetyService"

type Empty struct{}

type BlockRequest struct {
	BlockerUserId string `json:"blocker_user_id" validate:"required,max=64"`
	BlockedUserId string `json:"blocked_user_id" validate:"required,max=64"`
}

type ReportRequest struct {
	ReporterUserId string `json:"reporter_user_id"`
	TargetId       string `json:"target_id"`
	// TargetKind is one of user, photo, message.
	TargetKind string `json:"target_kind"`
	Reason     string `json:"reason"`
}

type Report struct {
	ReportId   string    `json:"report_id"`
	ReporterId string    `json:"reporter_id"`
	TargetId   string    `json:"target_id"`
	TargetKind string    `json:"target_kind"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ReportResponse struct {
	Report Report `json:"report"`
}

type AdvanceReportRequest struct {
	ReportId string `json:"report_id" validate:"required,max=36"`
	Status   string `json:"status" validate:"required"`
}

type ListReportsRequest struct {
	TargetId string `json:"target_id" validate:"required,max=64"`
}

type ListReportsResponse struct {
	Reports []Report `json:"reports"`
}

// SafetyServer is the server API of the safety service.
type SafetyServer interface {
	Block(context.Context, *BlockRequest) (*Empty, error)
	Report(context.Context, *ReportRequest) (*ReportResponse, error)
	AdvanceReport(context.Context, *AdvanceReportRequest) (*ReportResponse, error)
	ListReports(context.Context, *ListReportsRequest) (*ListReportsResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SafetyServer)(nil),
	Methods: []grpc.MethodDesc{
		server.UnaryMethod(ServiceName, "Block", SafetyServer.Block),
		server.UnaryMethod(ServiceName, "Report", SafetyServer.Report),
		server.UnaryMethod(ServiceName, "AdvanceReport", SafetyServer.AdvanceReport),
		server.UnaryMethod(ServiceName, "ListReports", SafetyServer.ListReports),
	},
	Metadata: "safety",
}

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Block(ctx context.Context, in *BlockRequest, opts ...grpc.CallOption) (*Empty, error) {
	return server.Invoke[Empty](ctx, c.cc, "/"+ServiceName+"/Block", in, opts...)
}

func (c *Client) Report(ctx context.Context, in *ReportRequest, opts ...grpc.CallOption) (*ReportResponse, error) {
	return server.Invoke[ReportResponse](ctx, c.cc, "/"+ServiceName+"/Report", in, opts...)
}

func (c *Client) AdvanceReport(ctx context.Context, in *AdvanceReportRequest, opts ...grpc.CallOption) (*ReportResponse, error) {
	return server.Invoke[ReportResponse](ctx, c.cc, "/"+ServiceName+"/AdvanceReport", in, opts...)
}

func (c *Client) ListReports(ctx context.Context, in *ListReportsRequest, opts ...grpc.CallOption) (*ListReportsResponse, error) {
	return server.Invoke[ListReportsResponse](ctx, c.cc, "/"+ServiceName+"/ListReports", in, opts...)
}
