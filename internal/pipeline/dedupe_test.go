package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/judgment-cli/internal/model"
)

func TestDedupe(t *testing.T) {
	recs := []model.CaseRecord{
		{SerialNumber: "1", PartyName: model.Ptr("X VS Y")},
		{SerialNumber: "2", PartyName: model.Ptr("X VS Y")},
		{SerialNumber: "3"},
	}

	kept, dropped := Dedupe(recs)
	assert.Equal(t, 1, dropped)
	assert.Len(t, kept, 2)
	assert.Equal(t, model.SerialNumber("1"), kept[0].SerialNumber)
	assert.Equal(t, model.SerialNumber("3"), kept[1].SerialNumber)
	assert.Equal(t, len(recs), len(kept)+dropped)
}

func TestDedupe_NilKeysNeverDropped(t *testing.T) {
	recs := []model.CaseRecord{{SerialNumber: "1"}, {SerialNumber: "2"}, {SerialNumber: "3"}}
	kept, dropped := Dedupe(recs)
	assert.Zero(t, dropped)
	assert.Equal(t, recs, kept)
}

func TestDedupe_Idempotent(t *testing.T) {
	recs := []model.CaseRecord{
		{SerialNumber: "1", PartyName: model.Ptr("A VS B")},
		{SerialNumber: "2", PartyName: model.Ptr("C VS D")},
		{SerialNumber: "3", PartyName: model.Ptr("A VS B")},
		{SerialNumber: "4", PartyName: model.Ptr("a vs b")},
		{SerialNumber: "5"},
		{SerialNumber: "6", PartyName: model.Ptr("C VS D")},
	}
	once, dropped := Dedupe(recs)
	assert.Equal(t, 2, dropped)

	twice, droppedAgain := Dedupe(once)
	assert.Zero(t, droppedAgain)
	assert.Equal(t, once, twice)
}

func TestDedupe_Empty(t *testing.T) {
	kept, dropped := Dedupe(nil)
	assert.Empty(t, kept)
	assert.Zero(t, dropped)
}

func TestFilterByClassification(t *testing.T) {
	recs := []model.CaseRecord{
		{SerialNumber: "1", Classification: model.ClassificationOrder},
		{SerialNumber: "2", Classification: model.ClassificationJudgment},
		{SerialNumber: "3"},
		{SerialNumber: "4", Classification: model.ClassificationJudgment},
	}
	got := FilterByClassification(recs, model.ClassificationJudgment)
	assert.Len(t, got, 2)
	assert.Equal(t, model.SerialNumber("2"), got[0].SerialNumber)
	assert.Equal(t, model.SerialNumber("4"), got[1].SerialNumber)
}
