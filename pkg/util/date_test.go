package util

import (
    "strconv"
    "testing"
    "time"
)

func TestParseTimeRFC3339(t *testing.T) {
    s := "2024-10-10T10:10:10Z"
    got, ok := ParseTime(s)
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Format(time.RFC3339) != s {
        t.Fatalf("unexpected time %v", got)
    }
}

func TestParseTimePlainDate(t *testing.T) {
    got, ok := ParseTime("2024-01-05")
    if !ok {
        t.Fatalf("expected ok")
    }
    if !got.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
        t.Fatalf("unexpected time %v", got)
    }
}

func TestParseTimeMillis(t *testing.T) {
    got, ok := ParseTime("2019-01-30T00:00:00.000Z")
    if !ok {
        t.Fatalf("expected ok")
    }
    if FormatDate(got) != "2019-01-30" {
        t.Fatalf("unexpected date %s", FormatDate(got))
    }
}

func TestParseTimeOffsetIsNormalizedToUTC(t *testing.T) {
    got, ok := ParseTime("2024-03-01T22:30:00-05:00")
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Location() != time.UTC || FormatDate(got) != "2024-03-02" {
        t.Fatalf("unexpected time %v", got)
    }
}

func TestParseTimeUnix(t *testing.T) {
    ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
    got, ok := ParseTime(strconv.FormatInt(ts, 10))
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Unix() != ts {
        t.Fatalf("unexpected unix %v", got.Unix())
    }
}

func TestParseTimeDefault(t *testing.T) {
    def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
    got := ParseTimeDefault("", def)
    if !got.Equal(def) {
        t.Fatalf("expected default")
    }
    if _, ok := ParseTime("yesterday"); ok {
        t.Fatalf("expected garbage to fail")
    }
}

func TestMidnightUTC(t *testing.T) {
    loc := time.FixedZone("X", 9*3600)
    in := time.Date(2024, 1, 5, 3, 0, 0, 0, loc) // 2024-01-04 18:00 UTC
    got := MidnightUTC(in)
    if !got.Equal(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)) {
        t.Fatalf("unexpected midnight %v", got)
    }
}
