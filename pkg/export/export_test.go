package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCSVExporterRender(t *testing.T) {
	exp := NewCSVExporter()
	out, err := exp.Render(Sheet{
		Headers: []string{"Section", "Student", "Week"},
		Rows: [][]interface{}{
			{"S1", "Ana", 1},
			{"S1", "Budi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Section,Student,Week\nS1,Ana,1\nS1,Budi,\n", string(out))

	_, err = exp.Render(Sheet{})
	assert.Error(t, err)
}

func TestXLSXExporterRenderSheets(t *testing.T) {
	exp := NewXLSXExporter()
	out, err := exp.Render([]Sheet{
		{Name: "Exam 1", Headers: []string{"Section", "Student"}, Rows: [][]interface{}{{"S1", "Ana"}}},
		{Name: "Exam 2", Headers: []string{"Section", "Student"}, Rows: [][]interface{}{{"S2", "Budi"}}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Exam 1", "Exam 2"}, f.GetSheetList())
	header, err := f.GetCellValue("Exam 1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Section", header)
	student, err := f.GetCellValue("Exam 2", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Budi", student)
}

func TestXLSXExporterRequiresSheets(t *testing.T) {
	_, err := NewXLSXExporter().Render(nil)
	assert.Error(t, err)
}

func TestICSExporterRender(t *testing.T) {
	exp := NewICSExporter("")
	exp.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	start := time.Date(2026, 2, 2, 13, 30, 0, 0, time.UTC)

	out, err := exp.Render("Exams", []CalendarEvent{{
		UID:      "slot-1",
		Summary:  "Exam 1",
		Location: "Room 4",
		Start:    start,
		End:      start.Add(7 * time.Minute),
	}})
	require.NoError(t, err)

	body := string(out)
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR"))
	assert.Contains(t, body, "METHOD:PUBLISH")
	assert.Contains(t, body, "UID:slot-1")
	assert.Contains(t, body, "DTSTART:20260202T133000Z")
	assert.Contains(t, body, "DTEND:20260202T133700Z")
	assert.Contains(t, body, "LOCATION:Room 4")
	assert.Equal(t, 1, strings.Count(body, "BEGIN:VEVENT"))
}

func TestICSExporterRejectsInvertedEvent(t *testing.T) {
	start := time.Date(2026, 2, 2, 13, 30, 0, 0, time.UTC)
	_, err := NewICSExporter("").Render("Exams", []CalendarEvent{{UID: "x", Start: start, End: start}})
	assert.Error(t, err)
}
