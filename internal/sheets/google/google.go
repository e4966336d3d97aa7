// Package google appends calculation events to a Google Sheet, one row per
// event, under a header row it creates on first use.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"retire/internal/diagnostics"
)

// DefaultSheetName is the base tab name; the current year is prefixed.
const DefaultSheetName = "Calculations"

// Sheets allows 60 write requests per minute per user.
const writesPerMinute = 60

// HeaderRow names the columns written by Record.
var HeaderRow = []any{
	"Timestamp", "ID", "Source", "Request ID", "Outcome", "Total Savings", "Failure Kind", "Reason",
	"Housing (mo)", "Living (mo)", "Going Out (mo)", "Vacation (yr)", "Membership (yr)",
	"Family (mo)", "Emergency (yr)", "Healthcare (mo)",
	"Current Age", "Retirement Age", "Life Expectancy", "Inflation Rate", "Return Rate",
}

// lastColumn is the column letter of the last HeaderRow entry.
const lastColumn = "U"

// valuesAPI is the part of the Sheets values service the client uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error
}

type Client struct {
	values        valuesAPI
	spreadsheetID string
	sheetName     string
	limiter       *rate.Limiter

	headerMu    sync.Mutex
	headerReady bool
}

// Config selects the spreadsheet and credentials. CredentialsJSON wins over
// CredentialsFile.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

var _ diagnostics.Sink = (*Client)(nil)

// NewFromEnv creates a client from GOOGLE_SPREADSHEET_ID, GOOGLE_SHEET_NAME and
// one of GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return New(ctx, Config{
		SpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: file,
	})
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(sheetsValues{svc: svc}, spreadsheetID, cfg.SheetName, time.Now().Year()), nil
}

func newClient(values valuesAPI, spreadsheetID, sheetName string, year int) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = DefaultSheetName
	}
	return &Client{
		values:        values,
		spreadsheetID: spreadsheetID,
		sheetName:     yearPrefixedName(sheetName, year),
		limiter:       rate.NewLimiter(rate.Limit(writesPerMinute/60.0), 5),
	}
}

// newSheetsService builds a Sheets service from service account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// SheetName returns the year-prefixed tab the client writes to.
func (c *Client) SheetName() string {
	return c.sheetName
}

// Record appends ev as one row, writing the header first if the tab is empty.
func (c *Client) Record(ctx context.Context, ev diagnostics.Event) error {
	if c.values == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.ensureHeader(ctx); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for sheets quota: %w", err)
	}

	rng := fmt.Sprintf("%s!A:%s", c.sheetName, lastColumn)
	if err := c.values.Append(ctx, c.spreadsheetID, rng, [][]any{EventRow(ev)}); err != nil {
		return fmt.Errorf("failed to append event %s to sheet %s: %w", ev.ID, c.sheetName, err)
	}
	return nil
}

func (c *Client) ensureHeader(ctx context.Context) error {
	c.headerMu.Lock()
	defer c.headerMu.Unlock()
	if c.headerReady {
		return nil
	}

	rng := fmt.Sprintf("%s!A1:%s1", c.sheetName, lastColumn)
	rows, err := c.values.Get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return fmt.Errorf("read header of sheet %s: %w", c.sheetName, err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		if err := c.values.Update(ctx, c.spreadsheetID, rng, [][]any{HeaderRow}); err != nil {
			return fmt.Errorf("write header of sheet %s: %w", c.sheetName, err)
		}
		slog.InfoContext(ctx, "Wrote header row", "sheet", c.sheetName)
	}
	c.headerReady = true
	return nil
}

// EventRow lays ev out in HeaderRow order. Amounts are rounded to cents;
// failure rows leave Total Savings empty.
func EventRow(ev diagnostics.Event) []any {
	total := any("")
	if ev.Succeeded() {
		total = decimal.NewFromFloat(ev.TotalSavings).Round(2).InexactFloat64()
	}
	in := ev.Inputs
	return []any{
		ev.Timestamp.UTC().Format(time.RFC3339),
		ev.ID,
		string(ev.Source),
		ev.RequestID,
		string(ev.Outcome),
		total,
		string(ev.FailureKind),
		ev.Reason,
		in.HousingMonthly, in.LivingMonthly, in.GoingOutMonthly, in.VacationAnnual, in.MembershipAnnual,
		in.FamilyMonthly, in.EmergencyAnnual, in.HealthcareMonthly,
		in.CurrentAge, in.RetirementAge, in.LifeExpectancy, in.InflationRate, in.ReturnRate,
	}
}

func (c *Client) Close() error { return nil }

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

type sheetsValues struct {
	svc *gsheet.Service
}

func (s sheetsValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s sheetsValues) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (s sheetsValues) Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}
