package service

import (
	"fmt"
	"time"
)

// GenerateNCNumber builds the human-readable NC number: NC-YYYYMMDD-NNNN,
// date from the detection date, NNNN from the creation timestamp. Generated
// once at creation and never reassigned.
func GenerateNCNumber(detectedDate, createdAt time.Time) string {
	fragment := createdAt.UnixNano() % 10000
	return fmt.Sprintf("NC-%s-%04d", detectedDate.Format("20060102"), fragment)
}
