package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDays() []DailyAggregate {
	return []DailyAggregate{
		{Date: "2021-05-01", TempC: Float(11), MinTempC: Float(10), MaxTempC: Float(12), NValues: 2},
		{Date: "2021-05-02"},
		{Date: "2021-05-03", TempC: Float(9), MinTempC: Float(9), MaxTempC: Float(9), NValues: 1},
	}
}

func TestMergeAirTemp(t *testing.T) {
	t.Run("nil lookup leaves absence", func(t *testing.T) {
		for _, d := range MergeAirTemp(sampleDays(), nil) {
			assert.Nil(t, d.AirTempC, d.Date)
		}
	})

	t.Run("exact date match only", func(t *testing.T) {
		lookup := AirTempLookup{"2021-05-01": 7.25, "2021-05-03": -1.5, "2021-06-01": 20}
		got := MergeAirTemp(sampleDays(), lookup)

		require.Len(t, got, 3)
		require.NotNil(t, got[0].AirTempC)
		assert.InDelta(t, 7.25, *got[0].AirTempC, 1e-9)
		assert.Nil(t, got[1].AirTempC, "no forward fill")
		require.NotNil(t, got[2].AirTempC)
		assert.InDelta(t, -1.5, *got[2].AirTempC, 1e-9)
		assert.Equal(t, 2, got[0].NValues)
	})

	t.Run("idempotent", func(t *testing.T) {
		lookup := AirTempLookup{"2021-05-02": 3}
		once := MergeAirTemp(sampleDays(), lookup)
		twice := MergeAirTemp(once, lookup)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("second merge changed result (-once +twice):\n%s", diff)
		}
	})

	t.Run("input is not mutated", func(t *testing.T) {
		in := sampleDays()
		MergeAirTemp(in, AirTempLookup{"2021-05-01": 1})
		assert.Nil(t, in[0].AirTempC)
	})
}

func TestClampYears(t *testing.T) {
	start, end, ok := ClampYears(2020, 2024, 2023)
	assert.True(t, ok)
	assert.Equal(t, 2020, start)
	assert.Equal(t, 2023, end)

	_, end, ok = ClampYears(2019, 2021, 2023)
	assert.True(t, ok)
	assert.Equal(t, 2021, end)

	_, _, ok = ClampYears(2024, 2025, 2023)
	assert.False(t, ok)
}

func TestDayOfYear(t *testing.T) {
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), DayOfYear(2020, 1))
	assert.Equal(t, time.Date(2020, 12, 30, 0, 0, 0, 0, time.UTC), DayOfYear(2020, 365))
	assert.Equal(t, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), DayOfYear(2021, 60))
}
