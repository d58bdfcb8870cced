package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quantessence/discretionary-engine/internal/domain"
)

// closeReportWire is the archived JSON schema for a finished position.
type closeReportWire struct {
	PositionID       string    `json:"position_id"`
	Asset            string    `json:"asset"`
	Symbol           string    `json:"symbol"`
	Side             string    `json:"side"`
	Quantity         float64   `json:"quantity"`
	TargetNotional   float64   `json:"target_notional"`
	AcquiredNotional float64   `json:"acquired_notional"`
	ClosedNotional   float64   `json:"closed_notional"`
	Clean            bool      `json:"clean"`
	AcquiredAt       time.Time `json:"acquired_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// ReportArchiver uploads one JSON close report per finished position, keyed
// by finish date.
type ReportArchiver struct {
	client *s3.Client
	bucket string
}

// NewReportArchiver creates an archiver writing to the client's bucket.
func NewReportArchiver(c *Client) *ReportArchiver {
	return &ReportArchiver{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// key lays reports out as positions/YYYY/MM/DD/<id>.json.
func (a *ReportArchiver) key(positionID string, finishedAt time.Time) string {
	return fmt.Sprintf("positions/%s/%s.json", finishedAt.UTC().Format("2006/01/02"), positionID)
}

// Archive uploads the close report for one finished position.
func (a *ReportArchiver) Archive(ctx context.Context, positionID string, report domain.FollowupReport) error {
	wire := closeReportWire{
		PositionID:       positionID,
		Asset:            report.Acquisition.Spec.Asset,
		Symbol:           report.Acquisition.Symbol,
		Side:             string(report.Acquisition.Spec.Side),
		Quantity:         report.Acquisition.Quantity,
		TargetNotional:   report.Acquisition.TargetNotional,
		AcquiredNotional: report.Acquisition.AcquiredNotional,
		ClosedNotional:   report.ClosedNotional,
		Clean:            report.Clean,
		AcquiredAt:       report.Acquisition.AcquiredAt,
		FinishedAt:       report.FinishedAt,
	}

	payload, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: encode close report %s: %w", positionID, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key(positionID, report.FinishedAt)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: archive close report %s: %w", positionID, err)
	}
	return nil
}
