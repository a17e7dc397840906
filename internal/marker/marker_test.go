package marker

import (
	"testing"

	"unit-tracker/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestColorFor_Deterministic(t *testing.T) {
	for _, id := range []models.ID{"1", "veh-042", "", "a-very-long-identifier-that-keeps-going"} {
		first := ColorFor(id)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, ColorFor(id))
		}
	}
}

func TestColorFor_Ranges(t *testing.T) {
	for i := 0; i < 500; i++ {
		c := ColorFor(models.ID(string(rune('a'+i%26)) + string(rune('0'+i%10)) + string(rune(i))))
		assert.GreaterOrEqual(t, c.H, 0)
		assert.Less(t, c.H, 360)
		assert.GreaterOrEqual(t, c.S, 60)
		assert.Less(t, c.S, 85)
		assert.GreaterOrEqual(t, c.L, 40)
		assert.Less(t, c.L, 60)
	}
}

func TestHSL_String(t *testing.T) {
	assert.Equal(t, "hsl(120, 70%, 45%)", HSL{H: 120, S: 70, L: 45}.String())
}

func TestIconFor_ExplicitCategory(t *testing.T) {
	icon := IconFor(models.Device{Code: "TRUCK-1", Category: "Sensor"})
	assert.Equal(t, "sensor", icon.Category)
}

func TestIconFor_KeywordFallback(t *testing.T) {
	assert.Equal(t, "vehicle", IconFor(models.Device{Code: "TRUCK-07"}).Category)
	assert.Equal(t, "aircraft", IconFor(models.Device{Name: "Heli Bravo"}).Category)
	assert.Equal(t, "drone", IconFor(models.Device{Code: "UAV-3"}).Category)
	assert.Equal(t, "personnel", IconFor(models.Device{Name: "Squad leader"}).Category)
	assert.Equal(t, "vehicle", IconFor(models.Device{Code: "x", Category: "spaceship", Name: "jeep"}).Category)
}

func TestIconFor_KeywordsMatchWholeWords(t *testing.T) {
	assert.Equal(t, DefaultIcon, IconFor(models.Device{Name: "Repair chair"}))
	assert.Equal(t, DefaultIcon, IconFor(models.Device{Name: "Cargo scarab"}))
	assert.Equal(t, DefaultIcon, IconFor(models.Device{Code: "CAMP-2"}))
	assert.Equal(t, "aircraft", IconFor(models.Device{Name: "Helicopter two"}).Category)
	assert.Equal(t, "aircraft", IconFor(models.Device{Code: "AIR-9"}).Category)
	assert.Equal(t, "drone", IconFor(models.Device{Code: "UAV03"}).Category)
	assert.Equal(t, "equipment", IconFor(models.Device{Name: "Field equipment"}).Category)
}

func TestIconFor_Default(t *testing.T) {
	assert.Equal(t, DefaultIcon, IconFor(models.Device{Code: "X-1", Name: "Unknown thing"}))
}

func TestCategories(t *testing.T) {
	cats := Categories()
	assert.Len(t, cats, len(categories))
	for _, c := range cats {
		_, ok := categories[c]
		assert.True(t, ok, c)
	}
}
