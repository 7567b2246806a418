package export

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/pkg/notion"
)

// TitleProperty is the database property that identifies a record's page.
const TitleProperty = "Serial Number"

// NotionStats counts what an export did.
type NotionStats struct {
	Created int
	Updated int
	Skipped int
}

// NotionExporter upserts records into a Notion database keyed by serial
// number.
type NotionExporter struct {
	client notion.Client
	dbID   string
}

// NewNotionExporter creates a NotionExporter for the database.
func NewNotionExporter(client notion.Client, dbID string) *NotionExporter {
	return &NotionExporter{client: client, dbID: dbID}
}

// Export creates a page for each record whose serial number is not yet in
// the database and updates the existing page otherwise. Records without a
// serial number are skipped. It stops at the first API error.
func (e *NotionExporter) Export(ctx context.Context, records []model.CaseRecord) (NotionStats, error) {
	var stats NotionStats
	if e.dbID == "" {
		return stats, eris.New("notion: database id is required")
	}

	existing, err := notion.QueryAll(ctx, e.client, e.dbID, nil)
	if err != nil {
		return stats, err
	}
	pages := notion.IndexByTitle(existing, TitleProperty)
	log := zap.L().With(zap.String("database_id", e.dbID))
	log.Info("notion: exporting records", zap.Int("records", len(records)), zap.Int("existing_pages", len(pages)))

	for i := range records {
		rec := &records[i]
		serial := string(rec.SerialNumber)
		if serial == "" {
			stats.Skipped++
			continue
		}
		props := recordProperties(rec)

		if id, ok := pages[serial]; ok {
			if _, err := e.client.UpdatePage(ctx, string(id), &notionapi.PageUpdateRequest{Properties: props}); err != nil {
				return stats, eris.Wrapf(err, "notion: update record %s", serial)
			}
			stats.Updated++
			continue
		}

		page, err := e.client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(e.dbID),
			},
			Properties: props,
		})
		if err != nil {
			return stats, eris.Wrapf(err, "notion: create record %s", serial)
		}
		pages[serial] = page.ID
		stats.Created++
	}

	log.Info("notion: export complete",
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// recordProperties maps a record onto database properties. Empty fields are
// left out so an update never blanks a value set by hand in Notion.
func recordProperties(r *model.CaseRecord) notionapi.Properties {
	props := notionapi.Properties{TitleProperty: notion.Title(string(r.SerialNumber))}

	text := map[string]string{
		"Case Name":         str(r.CaseName),
		"Party Name":        str(r.PartyName),
		"Judges":            str(r.Judges),
		"Date of Decision":  str(r.DateOfDecision),
		"Summary":           str(r.Summary),
		"Rephrased Summary": str(r.RephrasedSummary),
		"Reasons":           strings.Join(r.NoveltyReasons, "\n"),
		"Errors":            stageErrors(r),
	}
	for name, v := range text {
		if v != "" {
			props[name] = notion.RichText(v)
		}
	}

	selects := map[string]string{
		"Type":        string(r.Classification),
		"Area of Law": string(model.Deref(r.AreaOfLaw)),
		"Novelty":     string(model.Deref(r.NoveltyScore)),
		"Category":    str(r.Category),
	}
	for name, v := range selects {
		if v != "" {
			props[name] = notion.Select(v)
		}
	}

	if r.DocumentLink != "" {
		props["PDF Link"] = notion.URL(r.DocumentLink)
	}
	return props
}
