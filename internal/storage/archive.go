package storage

import (
	"bytes"
	"context"
	"fmt"

	"basket-booking/internal/booking"
	"basket-booking/internal/models"
	"basket-booking/internal/pdf"
)

// ConfirmationArchive uploads the confirmation PDF of every accepted
// registration under confirmations/<date>/.
type ConfirmationArchive struct {
	up FileUploader
}

var _ booking.Archiver = (*ConfirmationArchive)(nil)

func NewConfirmationArchive(up FileUploader) *ConfirmationArchive {
	return &ConfirmationArchive{up: up}
}

func (a *ConfirmationArchive) ArchiveConfirmation(ctx context.Context, res *booking.Result) (string, error) {
	r := res.Registration
	var buf bytes.Buffer
	if err := pdf.Confirmation(&buf, pdf.FromRegistration(r, res.List == models.ListWaitlist)); err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	key := fmt.Sprintf("confirmations/%s/%s", r.Date, pdf.ConfirmationFilename(r.Date, r.Player, r.Time))
	out, err := a.up.Upload(ctx, key, "application/pdf", &buf)
	if err != nil {
		return "", err
	}
	return out.Location, nil
}
