package repository

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"HoopsCast/internal/domain/models"
	"HoopsCast/pkg/util"

	"github.com/parquet-go/parquet-go"
)

// TableCodec serializes a dataset table to bytes and back.
type TableCodec interface {
	Encode(t *models.Table) ([]byte, error)
	Decode(b []byte) (*models.Table, error)
	ContentType() string
}

// CodecFor returns the codec for a storage format name.
func CodecFor(format string) (TableCodec, error) {
	switch format {
	case "", "csv":
		return CSVCodec{}, nil
	case "parquet":
		return ParquetCodec{}, nil
	}
	return nil, fmt.Errorf("unknown table format %q", format)
}

// CSVCodec writes the base columns followed by the feature columns. Missing
// values are empty cells; floats use the shortest round-trip form.
type CSVCodec struct{}

func (CSVCodec) ContentType() string { return "text/csv" }

func (CSVCodec) Encode(t *models.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	rec := make([]string, len(models.BaseColumns)+len(t.Columns))
	for _, m := range t.Rows {
		rec[0] = strconv.FormatInt(m.ID, 10)
		rec[1] = util.FormatDate(m.Date)
		rec[2] = m.HomeTeam
		rec[3] = m.AwayTeam
		rec[4] = formatCell(m.HomeScore)
		rec[5] = formatCell(m.AwayScore)
		for i, c := range t.Columns {
			v, ok := m.Features[c]
			if !ok {
				v = math.NaN()
			}
			rec[len(models.BaseColumns)+i] = formatCell(v)
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write row %d: %w", m.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (CSVCodec) Decode(b []byte) (*models.Table, error) {
	r := csv.NewReader(bytes.NewReader(b))
	header, err := r.Read()
	if err == io.EOF {
		return nil, models.ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, c := range models.BaseColumns {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("%w: %q", models.ErrMissingColumn, c)
		}
	}

	t := &models.Table{}
	base := make(map[string]bool, len(models.BaseColumns))
	for _, c := range models.BaseColumns {
		base[c] = true
	}
	for _, h := range header {
		if h = strings.TrimSpace(h); !base[h] {
			t.Columns = append(t.Columns, h)
		}
	}

	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		m, err := decodeCSVRow(rec, pos, t.Columns)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t.Rows = append(t.Rows, m)
	}
	return t, nil
}

func decodeCSVRow(rec []string, pos map[string]int, columns []string) (models.Matchup, error) {
	var m models.Matchup
	id, err := strconv.ParseInt(rec[pos[models.ColumnID]], 10, 64)
	if err != nil {
		return m, fmt.Errorf("id: %w", err)
	}
	date, ok := util.ParseTime(rec[pos[models.ColumnDate]])
	if !ok {
		return m, fmt.Errorf("unparseable date %q", rec[pos[models.ColumnDate]])
	}
	m.ID, m.Date = id, date
	m.HomeTeam = rec[pos[models.ColumnHomeTeam]]
	m.AwayTeam = rec[pos[models.ColumnAwayTeam]]

	if m.HomeScore, err = parseCell(rec[pos[models.ColumnHomeScore]], 0); err != nil {
		return m, fmt.Errorf("home score: %w", err)
	}
	if m.AwayScore, err = parseCell(rec[pos[models.ColumnAwayScore]], 0); err != nil {
		return m, fmt.Errorf("away score: %w", err)
	}

	m.Features = make(map[string]float64, len(columns))
	for _, c := range columns {
		v, err := parseCell(rec[pos[c]], math.NaN())
		if err != nil {
			return m, fmt.Errorf("%s: %w", c, err)
		}
		m.Features[c] = v
	}
	return m, nil
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return util.FormatFloat(v)
}

func parseCell(s string, empty float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return empty, nil
	}
	return strconv.ParseFloat(s, 64)
}

const parquetColumnsKey = "hoopscast.feature_columns"

type parquetRow struct {
	ID        int64     `parquet:"id"`
	Date      string    `parquet:"home_date"`
	HomeTeam  string    `parquet:"home_team_abbreviation"`
	AwayTeam  string    `parquet:"away_team_abbreviation"`
	HomeScore float64   `parquet:"home_team_score"`
	AwayScore float64   `parquet:"away_team_score"`
	Features  []float64 `parquet:"features,list"`
}

// ParquetCodec stores features as a list aligned with the column names kept
// in the file's key/value metadata.
type ParquetCodec struct{}

func (ParquetCodec) ContentType() string { return "application/vnd.apache.parquet" }

func (ParquetCodec) Encode(t *models.Table) ([]byte, error) {
	rows := make([]parquetRow, len(t.Rows))
	for i, m := range t.Rows {
		feats := make([]float64, len(t.Columns))
		for j, c := range t.Columns {
			v, ok := m.Features[c]
			if !ok {
				v = math.NaN()
			}
			feats[j] = v
		}
		rows[i] = parquetRow{
			ID:        m.ID,
			Date:      util.FormatDate(m.Date),
			HomeTeam:  m.HomeTeam,
			AwayTeam:  m.AwayTeam,
			HomeScore: m.HomeScore,
			AwayScore: m.AwayScore,
			Features:  feats,
		}
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[parquetRow](&buf,
		parquet.Compression(&parquet.Snappy),
		parquet.KeyValueMetadata(parquetColumnsKey, strings.Join(t.Columns, ",")),
	)
	if _, err := w.Write(rows); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (ParquetCodec) Decode(b []byte) (*models.Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	t := &models.Table{}
	if cols, ok := f.Lookup(parquetColumnsKey); ok && cols != "" {
		t.Columns = strings.Split(cols, ",")
	}

	rows, err := parquet.Read[parquetRow](bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	t.Rows = make([]models.Matchup, len(rows))
	for i, r := range rows {
		if len(r.Features) != len(t.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d features, header has %d", models.ErrMissingColumn, r.ID, len(r.Features), len(t.Columns))
		}
		date, ok := util.ParseTime(r.Date)
		if !ok {
			return nil, fmt.Errorf("row %d: unparseable date %q", r.ID, r.Date)
		}
		feats := make(map[string]float64, len(t.Columns))
		for j, c := range t.Columns {
			feats[c] = r.Features[j]
		}
		t.Rows[i] = models.Matchup{
			ID:        r.ID,
			Date:      date,
			HomeTeam:  r.HomeTeam,
			AwayTeam:  r.AwayTeam,
			HomeScore: r.HomeScore,
			AwayScore: r.AwayScore,
			Features:  feats,
		}
	}
	return t, nil
}
