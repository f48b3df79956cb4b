package mt940

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	subfieldRegexp = regexp.MustCompile(`\?(\d{2})`)
	sepaTagRegexp  = regexp.MustCompile(`^([A-Z]{4})\+(.*)$`)
	gvcRegexp      = regexp.MustCompile(`^\d{3}`)
)

// SEPA purpose tags
const (
	TagPurpose          = "SVWZ"
	TagEndToEnd         = "EREF"
	TagMandate          = "MREF"
	TagCreditorID       = "CRED"
	TagOriginalSender   = "ABWA"
	TagOriginalReceiver = "ABWE"
)

func isPurposeField(code int) bool {
	return (code >= 20 && code <= 29) || (code >= 60 && code <= 63)
}

// DemuxPurpose splits purpose lines into SEPA tags. Lines that do not start
// with a tag are appended to the last opened one. Untagged leading text
// is returned under an empty key
func DemuxPurpose(lines []string) map[string]string {
	result := map[string]string{}
	current := ""
	for _, line := range lines {
		if match := sepaTagRegexp.FindStringSubmatch(line); match != nil {
			current = match[1]
			result[current] += match[2]
			continue
		}
		result[current] += line
	}
	return result
}

// applyDescription fills details from the ":86:" field
func applyDescription(trx *Transaction, value string) {
	if gvc := gvcRegexp.FindString(value); gvc != "" {
		trx.TransactionCode = gvc
		value = value[len(gvc):]
	}

	locations := subfieldRegexp.FindAllStringSubmatchIndex(value, -1)
	if len(locations) == 0 {
		trx.Purpose = strings.TrimSpace(value)
		return
	}

	var (
		purposeLines []string
		name         strings.Builder
	)
	for i, loc := range locations {
		code, _ := strconv.Atoi(value[loc[2]:loc[3]])
		end := len(value)
		if i+1 < len(locations) {
			end = locations[i+1][0]
		}
		text := value[loc[1]:end]
		switch {
		case code == 0:
			trx.BookingText = strings.TrimSpace(text)
		case isPurposeField(code):
			purposeLines = append(purposeLines, text)
		case code == 30:
			trx.CounterpartyBIC = strings.TrimSpace(text)
		case code == 31:
			trx.CounterpartyIBAN = strings.TrimSpace(text)
		case code == 32 || code == 33:
			name.WriteString(text)
		}
	}
	trx.CounterpartyName = strings.TrimSpace(name.String())

	tags := DemuxPurpose(purposeLines)
	trx.EndToEndReference = strings.TrimSpace(tags[TagEndToEnd])
	trx.MandateReference = strings.TrimSpace(tags[TagMandate])
	trx.CreditorID = strings.TrimSpace(tags[TagCreditorID])
	if purpose, ok := tags[TagPurpose]; ok {
		trx.Purpose = strings.TrimSpace(purpose)
	} else {
		trx.Purpose = strings.TrimSpace(tags[""])
	}
}
