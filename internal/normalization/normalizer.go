package normalization

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/countries"
	"github.com/lvonguyen/cdrforge/internal/observability"
	"github.com/lvonguyen/cdrforge/internal/schema"
)

// recordNamespace scopes record IDs so they are stable per (session, row).
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://cdrforge/records"))

// Batch is one upload to normalize.
type Batch struct {
	SessionID string
	// SubjectNumber is the target MSISDN. When empty it is inferred as the
	// most frequent party number.
	SubjectNumber string
	Detection     *Detection
	Rows          [][]string
}

// Normalizer maps raw rows onto canonical records
type Normalizer struct {
	countries *countries.Table
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewNormalizer creates a new normalizer
func NewNormalizer(table *countries.Table, logger *zap.Logger, metrics *observability.Metrics) *Normalizer {
	if table == nil {
		table = countries.Builtin()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{countries: table, logger: logger, metrics: metrics}
}

// Normalize converts every row of the batch. Rows failing on a required
// field are left out and listed in the report; the batch always completes.
// Records keep source row order.
func (n *Normalizer) Normalize(b Batch) ([]cdr.Record, *cdr.NormalizationReport, error) {
	if b.SessionID == "" {
		return nil, nil, fmt.Errorf("session id is required")
	}
	if b.Detection == nil || b.Detection.Profile == nil {
		return nil, nil, fmt.Errorf("detection is required")
	}
	det := b.Detection

	subject := CleanNumber(b.SubjectNumber)
	if subject == "" {
		subject = InferSubject(det, b.Rows)
	}

	report := &cdr.NormalizationReport{
		SessionID:     b.SessionID,
		Vendor:        det.Vendor,
		Score:         det.Score,
		Confidence:    det.Confidence,
		SubjectNumber: subject,
		RowsTotal:     len(b.Rows),
		Rejected:      []cdr.RejectedRow{},
	}

	records := make([]cdr.Record, 0, len(b.Rows))
	for i, row := range b.Rows {
		rec, err := n.normalizeRow(det, subject, row)
		if err != nil {
			var rowErr *cdr.RowError
			if !errors.As(err, &rowErr) {
				return nil, nil, err
			}
			rowErr.Row = i
			report.Rejected = append(report.Rejected, rowErr.Rejection())
			continue
		}
		rec.RecordID = RecordID(b.SessionID, i)
		rec.SessionID = b.SessionID
		rec.RawRowIndex = i
		records = append(records, rec)
	}
	report.RowsAccepted = len(records)

	n.metrics.ObserveRows(det.Vendor, report.RowsAccepted, report.RowsRejected())
	n.logger.Info("Normalized CDR batch",
		zap.String("session_id", b.SessionID),
		zap.String("vendor", det.Vendor),
		zap.String("subject", subject),
		zap.Int("rows_total", report.RowsTotal),
		zap.Int("rows_accepted", report.RowsAccepted),
		zap.Int("rows_rejected", report.RowsRejected()),
	)
	return records, report, nil
}

// RecordID derives the stable identifier of a source row.
func RecordID(sessionID string, row int) string {
	return uuid.NewSHA1(recordNamespace, []byte(sessionID+":"+strconv.Itoa(row))).String()
}

func (n *Normalizer) normalizeRow(det *Detection, subject string, row []string) (cdr.Record, error) {
	var rec cdr.Record
	rec.SourceVendor = det.Vendor

	rec.CallingNumber = CleanNumber(det.cell(row, schema.FieldCallingNumber))
	if rec.CallingNumber == "" {
		return rec, &cdr.RowError{Reason: cdr.ReasonMissingRequiredField, Field: string(schema.FieldCallingNumber)}
	}
	rec.CalledNumber = CleanNumber(det.cell(row, schema.FieldCalledNumber))
	if rec.CalledNumber == "" {
		return rec, &cdr.RowError{Reason: cdr.ReasonMissingRequiredField, Field: string(schema.FieldCalledNumber)}
	}

	start, raw, err := det.startTime(row)
	if err != nil {
		return rec, err
	}
	rec.StartTime = start

	dur, err := det.duration(row, start)
	if err != nil {
		return rec, err
	}
	if dur < 0 {
		return rec, &cdr.RowError{
			Reason: cdr.ReasonInvalidDuration,
			Field:  string(schema.FieldDuration),
			Detail: fmt.Sprintf("negative duration %v (start %s)", dur, raw),
		}
	}
	rec.DurationSeconds = dur

	callType := det.cell(row, schema.FieldCallType)
	rec.EventType = parseEventType(callType)
	rec.Status = parseStatus(det.cell(row, schema.FieldStatus))
	rec.Direction = det.direction(row, callType, subject, rec.CallingNumber, rec.CalledNumber)

	rec.IMEI = cleanIdentifier(det.cell(row, schema.FieldIMEI))
	rec.IMSI = cleanIdentifier(det.cell(row, schema.FieldIMSI))
	rec.LAC = parseLAC(det.cell(row, schema.FieldLAC))
	rec.MNC = parseInt(det.cell(row, schema.FieldMNC))
	rec.MCC = parseInt(det.cell(row, schema.FieldMCC))
	rec.CellTowerID = strings.TrimSuffix(det.cell(row, schema.FieldCellID), ".0")
	if mcc, mnc, lac, cell, ok := SplitCGI(rec.CellTowerID); ok {
		rec.CellTowerID = cell
		if rec.MCC == 0 {
			rec.MCC = mcc
		}
		if rec.MNC == 0 {
			rec.MNC = mnc
		}
		if rec.LAC == 0 {
			rec.LAC = lac
		}
	}
	rec.Lat = parseCoord(det.cell(row, schema.FieldLat), 90)
	rec.Lon = parseCoord(det.cell(row, schema.FieldLon), 180)
	if rec.Lat == nil || rec.Lon == nil {
		rec.Lat, rec.Lon = nil, nil
	}

	rec.SMSContent = det.cell(row, schema.FieldSMSContent)
	if rec.SMSContent != "" && callType == "" {
		rec.EventType = cdr.EventSMS
	}
	rec.CostUnits = parseFloat(det.cell(row, schema.FieldCost))
	rec.DataVolumeMB = parseFloat(det.cell(row, schema.FieldDataVolume))
	if rec.DataVolumeMB > 0 && callType == "" {
		rec.EventType = cdr.EventData
	}

	if c := n.countries.Classify(rec.CalledNumber); c.Code != countries.UnknownCode {
		rec.CalledCountryCode = c.Code
	}
	return rec, nil
}

// cell returns the trimmed value of a field, or "" when the field is not
// mapped or the cell is empty.
func (det *Detection) cell(row []string, f schema.Field) string {
	i, ok := det.Columns[f]
	if !ok || i >= len(row) {
		return ""
	}
	return value(row[i])
}

// startTime resolves the event start from a combined timestamp column, or
// from separate date and time-of-day columns.
func (det *Detection) startTime(row []string) (time.Time, string, error) {
	raw := det.cell(row, schema.FieldStartTime)
	if raw == "" {
		date := det.cell(row, schema.FieldStartDate)
		if date != "" {
			if clock := det.cell(row, schema.FieldStartClock); clock != "" {
				if i := strings.IndexByte(date, ' '); i > 0 {
					date = date[:i]
				}
				raw = date + " " + clock
			} else {
				raw = date
			}
		}
	}
	if raw == "" {
		return time.Time{}, "", &cdr.RowError{
			Reason: cdr.ReasonMissingRequiredField,
			Field:  string(schema.FieldStartTime),
		}
	}
	t, err := parseTime(raw, det.Profile.Layouts(), det.Profile.Location())
	if err != nil {
		return time.Time{}, raw, &cdr.RowError{
			Reason: cdr.ReasonUnparseableTimestamp,
			Field:  string(schema.FieldStartTime),
			Detail: err.Error(),
		}
	}
	return t, raw, nil
}

// duration reads the duration column, falling back to end - start.
func (det *Detection) duration(row []string, start time.Time) (float64, error) {
	if raw := det.cell(row, schema.FieldDuration); raw != "" {
		d, err := parseDuration(raw)
		if err != nil {
			return 0, &cdr.RowError{
				Reason: cdr.ReasonInvalidDuration,
				Field:  string(schema.FieldDuration),
				Detail: err.Error(),
			}
		}
		return d, nil
	}
	if raw := det.cell(row, schema.FieldEndTime); raw != "" {
		end, err := parseTime(raw, det.Profile.Layouts(), det.Profile.Location())
		if err == nil {
			return end.Sub(start).Seconds(), nil
		}
	}
	return 0, nil
}

// direction resolves the call direction: explicit direction column, then the
// vendor's call-type codes, then the subject's role, else outgoing.
func (det *Detection) direction(row []string, callType, subject, calling, called string) cdr.Direction {
	codes := det.Profile.DirectionCodes
	if d, ok := parseDirection(det.cell(row, schema.FieldDirection), codes); ok {
		return d
	}
	if d, ok := parseDirection(callType, codes); ok {
		return d
	}
	if subject != "" {
		switch {
		case cdr.SameNumber(calling, subject):
			return cdr.DirectionOutgoing
		case cdr.SameNumber(called, subject):
			return cdr.DirectionIncoming
		}
	}
	return cdr.DirectionOutgoing
}

// InferSubject returns the party number that occurs most often across the
// calling and called columns, ties going to the number seen first.
func InferSubject(det *Detection, rows [][]string) string {
	counts := make(map[string]int)
	var order []string
	for _, row := range rows {
		for _, f := range schema.IdentityFields {
			num := CleanNumber(det.cell(row, f))
			if num == "" {
				continue
			}
			if counts[num] == 0 {
				order = append(order, num)
			}
			counts[num]++
		}
	}
	best, bestCount := "", 0
	for _, num := range order {
		if counts[num] > bestCount {
			best, bestCount = num, counts[num]
		}
	}
	return best
}

func cleanIdentifier(s string) string {
	s = strings.TrimSuffix(value(s), ".0")
	return strings.Trim(s, "'\"")
}
