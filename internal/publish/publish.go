package publish

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/blob"
	"voicenotes-go/internal/types"
)

// IdemStore persists idempotency keys with the response they produced, so
// a retried publish returns the original artifact URLs instead of writing
// a second object.
type IdemStore interface {
	LookupIdempotencyKey(ctx context.Context, key string) (json.RawMessage, error)
	SaveIdempotencyKey(ctx context.Context, key string, response json.RawMessage, ttl time.Duration) error
}

// Publisher writes redacted sample documents to shared storage.
type Publisher struct {
	Blob          blob.Store
	Idem          IdemStore
	ServerSidePDF bool
	KeyTTL        time.Duration
	Log           *logrus.Entry
}

type Request struct {
	UserID         string
	IdempotencyKey string
	Title          string
	Body           string
	Vertical       string
	CountsByType   map[string]int
	UsedPresidio   bool
	// PDFBase64 carries a client-rendered PDF when server-side rendering
	// is disabled.
	PDFBase64 string
}

type Result struct {
	PDFURL      string `json:"pdf_url"`
	ManifestURL string `json:"manifest_url"`
	Reused      bool   `json:"reused,omitempty"`
}

type manifest struct {
	UserID       string         `json:"user_id"`
	Title        string         `json:"title"`
	Vertical     string         `json:"vertical,omitempty"`
	PDFURL       string         `json:"pdf_url"`
	Chars        int            `json:"chars"`
	CountsByType map[string]int `json:"counts_by_type,omitempty"`
	UsedPresidio bool           `json:"used_presidio"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (p *Publisher) Publish(ctx context.Context, req Request) (Result, error) {
	if req.IdempotencyKey == "" {
		return Result{}, types.ErrMissingIdempotency
	}
	if req.Title == "" || req.Body == "" {
		return Result{}, types.NewValidation("missing_fields", "title and body are required")
	}

	if saved, err := p.Idem.LookupIdempotencyKey(ctx, req.IdempotencyKey); err != nil {
		return Result{}, err
	} else if saved != nil {
		return reusedResult(saved)
	}

	now := time.Now().UTC()
	pdfBytes, err := p.pdfBytes(req, now)
	if err != nil {
		return Result{}, err
	}

	base := fmt.Sprintf("samples/%s/%04d/%02d/%02d/%s",
		req.UserID, now.Year(), now.Month(), now.Day(), uuid.New().String())

	pdfURL, err := p.Blob.Upload(ctx, base+".pdf", pdfBytes, "application/pdf")
	if err != nil {
		return Result{}, fmt.Errorf("upload pdf: %w", err)
	}

	manifestBytes, _ := json.Marshal(manifest{
		UserID:       req.UserID,
		Title:        req.Title,
		Vertical:     req.Vertical,
		PDFURL:       pdfURL,
		Chars:        len(req.Body),
		CountsByType: req.CountsByType,
		UsedPresidio: req.UsedPresidio,
		CreatedAt:    now,
	})
	manifestURL, err := p.Blob.Upload(ctx, base+".json", manifestBytes, "application/json")
	if err != nil {
		return Result{}, fmt.Errorf("upload manifest: %w", err)
	}

	result := Result{PDFURL: pdfURL, ManifestURL: manifestURL}
	response, _ := json.Marshal(result)
	if err := p.Idem.SaveIdempotencyKey(ctx, req.IdempotencyKey, response, p.KeyTTL); err != nil {
		// A concurrent request with the same key won the insert; return
		// whatever it published.
		if saved, lookupErr := p.Idem.LookupIdempotencyKey(ctx, req.IdempotencyKey); lookupErr == nil && saved != nil {
			return reusedResult(saved)
		}
		return Result{}, err
	}
	p.Log.WithFields(logrus.Fields{"user_id": req.UserID, "pdf_url": pdfURL}).Info("sample published")
	return result, nil
}

func (p *Publisher) pdfBytes(req Request, now time.Time) ([]byte, error) {
	if p.ServerSidePDF {
		return renderPDF(req.Title, req.Body, now)
	}
	if req.PDFBase64 == "" {
		return nil, types.NewValidation("missing_pdf", "pdf_base64 is required when server-side rendering is disabled")
	}
	data, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		return nil, types.NewValidation("bad_pdf", "pdf_base64 is not valid base64")
	}
	return data, nil
}

func reusedResult(saved json.RawMessage) (Result, error) {
	var result Result
	if err := json.Unmarshal(saved, &result); err != nil {
		return Result{}, fmt.Errorf("decode saved response: %w", err)
	}
	result.Reused = true
	return result, nil
}
