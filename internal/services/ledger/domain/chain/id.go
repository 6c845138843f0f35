package chain

import (
	"strconv"
	"strings"
)

var idPartEscaper = strings.NewReplacer("%", "%25", "-", "%2D")

// DeriveRecordID builds PREFIX-kindKey-actorKey-timestamp. Dashes inside
// the key parts are percent-escaped so distinct inputs never collide.
func DeriveRecordID(prefix, kindKey, actorKey string, timestamp int64) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	b.WriteString(idPartEscaper.Replace(kindKey))
	b.WriteByte('-')
	b.WriteString(idPartEscaper.Replace(actorKey))
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(timestamp, 10))
	return b.String()
}
