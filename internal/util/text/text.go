package text

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

func Commify(inVal int) string { return Commify64(int64(inVal)) }

func Commify64(inVal int64) string {
	inStr := strconv.FormatInt(inVal, 10)

	var sign string
	if inVal < 0 {
		sign, inStr = "-", inStr[1:]
	}

	outStr := make([]byte, 0, len(inStr)+len(inStr)/3)
	for i := 0; i < len(inStr); i++ {
		if i > 0 && (len(inStr)-i)%3 == 0 {
			outStr = append(outStr, ',')
		}
		outStr = append(outStr, inStr[i])
	}

	return sign + string(outStr)
}

// AvailableMapKeys renders the sorted keys of a string-keyed map for use in
// help and error texts.
func AvailableMapKeys(m interface{}) string {
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Map {
		panic(fmt.Sprintf("AvailableMapKeys() called with a %s", v.Kind()))
	}

	avail := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		avail = append(avail, fmt.Sprintf(`'%s'`, k.String()))
	}
	sort.Strings(avail)
	return strings.Join(avail, ", ")
}
