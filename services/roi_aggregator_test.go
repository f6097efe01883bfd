package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCPI(t *testing.T) {
	cpi := ComputeCPI(250.0, 100)
	require.NotNil(t, cpi)
	assert.InDelta(t, 2.5, *cpi, 1e-9)

	// No installs means CPI is undefined, not zero and not +Inf.
	assert.Nil(t, ComputeCPI(250.0, 0))

	// Zero spend with installs is a legitimate free campaign.
	free := ComputeCPI(0, 100)
	require.NotNil(t, free)
	assert.Zero(t, *free)
}

func TestComputeROIPercent(t *testing.T) {
	roi := ComputeROIPercent(300.0, 100.0)
	require.NotNil(t, roi)
	assert.InDelta(t, 200.0, *roi, 1e-9)

	loss := ComputeROIPercent(50.0, 100.0)
	require.NotNil(t, loss)
	assert.InDelta(t, -50.0, *loss, 1e-9)

	total := ComputeROIPercent(0, 100.0)
	require.NotNil(t, total)
	assert.InDelta(t, -100.0, *total, 1e-9)

	// No spend means ROI is undefined.
	assert.Nil(t, ComputeROIPercent(300.0, 0))
}
