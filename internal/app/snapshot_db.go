package app

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const maxTracedSnapshotQueryLength = 512

var (
	sqlWhitespace = regexp.MustCompile(`\s+`)
	// valuesRows matches a multi-row VALUES list of placeholder tuples.
	valuesRows = regexp.MustCompile(`VALUES (\([^()]*\))((?:, \([^()]*\))+)`)
)

// snapshotDSN prepares DB_URL for the snapshot store. URL-style DSNs get the
// connection labelled with the service name and, when requested, binary results for
// prepared statements disabled. Keyword/value DSNs are returned unchanged.
func snapshotDSN(raw, applicationName string, disablePreparedBinary bool) string {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "postgres" && parsed.Scheme != "postgresql") {
		return raw
	}

	query := parsed.Query()
	changed := false
	if disablePreparedBinary && query.Get("disable_prepared_binary_result") == "" {
		query.Set("disable_prepared_binary_result", "yes")
		changed = true
	}
	if applicationName != "" && query.Get("application_name") == "" {
		query.Set("application_name", applicationName)
		changed = true
	}
	if !changed {
		return raw
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// snapshotDBName reports the database a DSN points at, for span attributes.
func snapshotDBName(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if parsed, err := url.Parse(dsn); err == nil && parsed.Scheme != "" {
		if name := strings.Trim(parsed.Path, "/ "); name != "" {
			return name
		}
	}

	for _, token := range strings.Fields(dsn) {
		if name, ok := strings.CutPrefix(token, "dbname="); ok {
			if name = strings.Trim(name, `"'`); name != "" {
				return name
			}
		}
	}
	return ""
}

// traceSnapshotQuery collapses whitespace and folds batched upsert tuples into one
// tuple plus a row count so span names stay short and stable across batch sizes.
func traceSnapshotQuery(query string) string {
	query = sqlWhitespace.ReplaceAllString(strings.TrimSpace(query), " ")
	query = valuesRows.ReplaceAllStringFunc(query, func(m string) string {
		parts := valuesRows.FindStringSubmatch(m)
		rows := 1 + strings.Count(parts[2], "(")
		return "VALUES " + parts[1] + " /* " + strconv.Itoa(rows) + " rows */"
	})
	if len(query) > maxTracedSnapshotQueryLength {
		return query[:maxTracedSnapshotQueryLength] + "..."
	}
	return query
}
