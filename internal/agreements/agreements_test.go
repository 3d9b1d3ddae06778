package agreements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/rentrail/internal/anchor"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryStore(), anchor.NewSimClient())
}

func createRequest() CreateRequest {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return CreateRequest{
		PropertyID:      "prop_1",
		LandlordID:      "landlord_1",
		TenantID:        "tenant_1",
		MonthlyRent:     2_500_000,
		SecurityDeposit: 5_000_000,
		StartDate:       start,
		EndDate:         start.AddDate(1, 0, 0),
	}
}

func TestCreate(t *testing.T) {
	svc := newTestService(t)

	a, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusActive, a.Status)
	assert.NotEmpty(t, a.ID)
	assert.Contains(t, a.AgreementNumber, "AGR")
	assert.False(t, a.Anchor.Anchored)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := createRequest()
	req.MonthlyRent = 0
	_, err := svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	req = createRequest()
	req.EndDate = req.StartDate
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestGetActive(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	got, err := svc.GetActive(context.Background(), "prop_1", "tenant_1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = svc.GetActive(context.Background(), "prop_1", "stranger")
	assert.ErrorIs(t, err, ErrAgreementNotFound)

	// Terminated agreements no longer resolve as active.
	_, err = svc.Terminate(context.Background(), a.ID, "landlord_1", "")
	require.NoError(t, err)
	_, err = svc.GetActive(context.Background(), "prop_1", "tenant_1")
	assert.ErrorIs(t, err, ErrAgreementNotFound)
}

func TestTerminate(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	got, err := svc.Terminate(context.Background(), a.ID, "tenant_1", "moving out")
	require.NoError(t, err)

	assert.Equal(t, StatusTerminated, got.Status)
	assert.Equal(t, "tenant_1", got.TerminatedBy)
	assert.Equal(t, "moving out", got.TerminationNote)
	assert.NotNil(t, got.TerminatedAt)
	assert.True(t, got.Ended())

	// One-way: terminating again rejects.
	_, err = svc.Terminate(context.Background(), a.ID, "landlord_1", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestTerminatePartyOnly(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	_, err = svc.Terminate(context.Background(), a.ID, "stranger", "")
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAnchorAgreement(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	got, err := svc.AnchorAgreement(context.Background(), a.ID, "landlord_1")
	require.NoError(t, err)

	assert.True(t, got.Anchor.Anchored)
	assert.Len(t, got.Anchor.ContentHash, 64)
	assert.NotEmpty(t, got.Anchor.TxID)
	assert.NotEmpty(t, got.Anchor.BlockRef)

	_, err = svc.AnchorAgreement(context.Background(), a.ID, "landlord_1")
	assert.ErrorIs(t, err, ErrAlreadyAnchored)
}

func TestAnchorAgreementConcurrent(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	// Two racing anchor calls must yield exactly one proof.
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.AnchorAgreement(context.Background(), a.ID, "landlord_1")
			errs <- err
		}()
	}

	var succeeded, rejected int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyAnchored):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
}

func TestTerminateConcurrent(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Terminate(context.Background(), a.ID, "landlord_1", "")
			errs <- err
		}()
	}

	var succeeded int
	for i := 0; i < 2; i++ {
		if err := <-errs; err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInvalidStatus)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestAnchorAgreementLandlordOnly(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	_, err = svc.AnchorAgreement(context.Background(), a.ID, "tenant_1")
	assert.ErrorIs(t, err, ErrNotAuthorized)
}
