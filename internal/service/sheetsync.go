package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"license-activation-service/internal/model"
)

// LicenseMirror keeps an external copy of the license table.
type LicenseMirror interface {
	SyncLicense(ctx context.Context, license model.License) error
	RemoveLicense(ctx context.Context, licenseKey string) error
}

type NopMirror struct{}

func (NopMirror) SyncLicense(context.Context, model.License) error { return nil }
func (NopMirror) RemoveLicense(context.Context, string) error      { return nil }

// SheetSyncService mirrors licenses to one Google Sheets tab, one row per
// license keyed by column A. Calls go through a circuit breaker so a failing
// Sheets API is skipped quickly.
type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	breaker       *gobreaker.CircuitBreaker[struct{}]
	logger        *zap.Logger
}

func NewSheetSyncService(ctx context.Context, credentialPath, spreadsheetID, sheetName string, logger *zap.Logger) (*SheetSyncService, error) {
	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("load sheets credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return newSheetSyncService(srv, spreadsheetID, sheetName, logger), nil
}

func newSheetSyncService(srv *sheets.Service, spreadsheetID, sheetName string, logger *zap.Logger) *SheetSyncService {
	s := &SheetSyncService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "google-sheets",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return s
}

func licenseRow(license model.License) []any {
	return []any{
		license.LicenseKey,
		license.FullName,
		license.NationalID,
		license.Email,
		license.PhoneNumber,
		strconv.Itoa(license.MaxDevices),
		string(license.Status),
		license.ExpiresAt.Format(time.RFC3339),
		license.CreatedAt.Format(time.RFC3339),
		license.UpdatedAt.Format(time.RFC3339),
	}
}

// findRow returns the 1-based sheet row holding key, or 0.
func (s *SheetSyncService) findRow(ctx context.Context, key string) (int, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A2:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read sheet keys: %w", err)
	}
	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprint(row[0]) == key {
			return i + 2, nil
		}
	}
	return 0, nil
}

// SyncLicense updates the license row in place or appends a new one.
func (s *SheetSyncService) SyncLicense(ctx context.Context, license model.License) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		row, err := s.findRow(ctx, license.LicenseKey)
		if err != nil {
			return struct{}{}, err
		}

		values := &sheets.ValueRange{Values: [][]any{licenseRow(license)}}
		if row > 0 {
			rangeData := fmt.Sprintf("%s!A%d:J%d", s.sheetName, row, row)
			_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, values).
				ValueInputOption("RAW").Context(ctx).Do()
		} else {
			_, err = s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A2:J", values).
				ValueInputOption("RAW").Context(ctx).Do()
		}
		if err != nil {
			return struct{}{}, fmt.Errorf("write sheet row: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// RemoveLicense clears the row holding licenseKey, if any.
func (s *SheetSyncService) RemoveLicense(ctx context.Context, licenseKey string) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		row, err := s.findRow(ctx, licenseKey)
		if err != nil || row == 0 {
			return struct{}{}, err
		}
		rangeData := fmt.Sprintf("%s!A%d:J%d", s.sheetName, row, row)
		if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, rangeData, &sheets.ClearValuesRequest{}).
			Context(ctx).Do(); err != nil {
			return struct{}{}, fmt.Errorf("clear sheet row: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}
