package scorm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SCORM 1.2 data model rules, enforced only by bridges created with BridgeOptions.Strict.

const dataModelVersion = "3.4"

var (
	childrenOf = map[string]string{
		"cmi.core":               "student_id,student_name,lesson_location,credit,lesson_status,entry,score,total_time,lesson_mode,exit,session_time",
		"cmi.core.score":         "raw,min,max",
		"cmi.objectives":         "id,score,status",
		"cmi.objectives.score":   "raw,min,max",
		"cmi.student_data":       "mastery_score,max_time_allowed,time_limit_action",
		"cmi.student_preference": "audio,language,speed,text",
		"cmi.interactions":       "id,objectives,time,type,correct_responses,weighting,student_response,result,latency",
	}

	arrayRegex    = regexp.MustCompile(`^(cmi\.objectives|cmi\.interactions|cmi\.interactions\.\d+\.objectives|cmi\.interactions\.\d+\.correct_responses)$`)
	arrayIdxRegex = regexp.MustCompile(`^(cmi\.objectives|cmi\.interactions|cmi\.interactions\.\d+\.objectives|cmi\.interactions\.\d+\.correct_responses)\.(\d+)\.`)

	elementRegexes = []*regexp.Regexp{
		regexp.MustCompile(`^cmi\.core\.(student_id|student_name|lesson_location|credit|lesson_status|entry|total_time|lesson_mode|exit|session_time)$`),
		regexp.MustCompile(`^cmi\.core\.score\.(raw|min|max)$`),
		regexp.MustCompile(`^cmi\.(suspend_data|launch_data|comments|comments_from_lms)$`),
		regexp.MustCompile(`^cmi\.objectives\.\d+\.(id|status)$`),
		regexp.MustCompile(`^cmi\.objectives\.\d+\.score\.(raw|min|max)$`),
		regexp.MustCompile(`^cmi\.student_data\.(mastery_score|max_time_allowed|time_limit_action)$`),
		regexp.MustCompile(`^cmi\.student_preference\.(audio|language|speed|text)$`),
		regexp.MustCompile(`^cmi\.interactions\.\d+\.(id|time|type|weighting|student_response|result|latency)$`),
		regexp.MustCompile(`^cmi\.interactions\.\d+\.objectives\.\d+\.id$`),
		regexp.MustCompile(`^cmi\.interactions\.\d+\.correct_responses\.\d+\.pattern$`),
	}

	readOnly = map[string]bool{
		ElemStudentID:                        true,
		ElemStudentName:                      true,
		ElemCredit:                           true,
		ElemEntry:                            true,
		ElemTotalTime:                        true,
		ElemLessonMode:                       true,
		"cmi.launch_data":                    true,
		"cmi.comments_from_lms":              true,
		"cmi.student_data.mastery_score":     true,
		"cmi.student_data.max_time_allowed":  true,
		"cmi.student_data.time_limit_action": true,
	}

	writeOnlyRegex = regexp.MustCompile(`^(cmi\.core\.(exit|session_time)|cmi\.interactions\.\d+\..+)$`)

	statusVocab      = vocab(StatusPassed, StatusCompleted, StatusFailed, StatusIncomplete, StatusBrowsed, StatusNotAttempted)
	exitVocab        = vocab("time-out", "suspend", "logout", "")
	interactionVocab = vocab("true-false", "choice", "fill-in", "matching", "performance", "sequencing", "likert", "numeric")
	resultVocab      = vocab("correct", "wrong", "unanticipated", "neutral")

	timespanRegex = regexp.MustCompile(`^(\d{2,4}):(\d{2}):(\d{2})(\.\d{1,2})?$`)
	timeRegex     = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d:[0-5]\d(\.\d{1,2})?$`)
)

func vocab(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func isSupported(element string) bool {
	for _, re := range elementRegexes {
		if re.MatchString(element) {
			return true
		}
	}
	return false
}

func isKeyword(element string) bool {
	return element == "cmi._version" || strings.HasSuffix(element, "._children") || strings.HasSuffix(element, "._count")
}

// strictGet answers keyword reads and enforces read rules. handled is false when the value must come from the model.
func strictGet(model map[string]string, element string) (value string, handled bool, perr *protocolError) {
	switch {
	case element == "cmi._version":
		return dataModelVersion, true, nil
	case strings.HasSuffix(element, "._children"):
		parent := strings.TrimSuffix(element, "._children")
		if children, ok := childrenOf[normalizeIndices(parent)]; ok {
			return children, true, nil
		}
		if isSupported(parent) {
			return "", true, newProtocolError(ErrCodeCannotHaveChildren, "%s has no children", parent)
		}
		return "", true, newProtocolError(ErrCodeNotImplemented, "%s is not supported", parent)
	case strings.HasSuffix(element, "._count"):
		parent := strings.TrimSuffix(element, "._count")
		if arrayRegex.MatchString(parent) {
			return strconv.Itoa(arrayCount(model, parent)), true, nil
		}
		if isSupported(parent) || childrenOf[parent] != "" {
			return "", true, newProtocolError(ErrCodeNotAnArray, "%s is not an array", parent)
		}
		return "", true, newProtocolError(ErrCodeNotImplemented, "%s is not supported", parent)
	case !isSupported(element):
		return "", true, newProtocolError(ErrCodeNotImplemented, "%s is not supported", element)
	case writeOnlyRegex.MatchString(element):
		return "", true, newProtocolError(ErrCodeWriteOnly, "%s is write only", element)
	}
	return "", false, nil
}

// strictSet enforces write rules and data types.
func strictSet(model map[string]string, element, value string) *protocolError {
	switch {
	case isKeyword(element):
		return newProtocolError(ErrCodeInvalidSetValue, "%s is a keyword", element)
	case !isSupported(element):
		return newProtocolError(ErrCodeNotImplemented, "%s is not supported", element)
	case readOnly[element]:
		return newProtocolError(ErrCodeReadOnly, "%s is read only", element)
	}

	// array members are appended in order; no gaps
	if m := arrayIdxRegex.FindStringSubmatch(element); m != nil {
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return newProtocolError(ErrCodeInvalidArgument, "%s: index out of range", element)
		}
		if idx > arrayCount(model, m[1]) {
			return newProtocolError(ErrCodeInvalidArgument, "%s: index %d skips past the end of %s", element, idx, m[1])
		}
	}

	if !validValue(element, value) {
		return newProtocolError(ErrCodeIncorrectDataType, "%q is not a valid value for %s", value, element)
	}
	return nil
}

func validValue(element, value string) bool {
	leaf := element[strings.LastIndex(element, ".")+1:]
	switch {
	case element == ElemLessonStatus, strings.HasPrefix(element, "cmi.objectives.") && leaf == "status":
		return statusVocab[value]
	case element == ElemExit:
		return exitVocab[value]
	case strings.Contains(element, ".score."):
		return value == "" || decimalIn(value, 0, 100)
	case element == ElemSessionTime, strings.HasPrefix(element, "cmi.interactions.") && leaf == "latency":
		return timespanRegex.MatchString(value)
	case element == ElemLessonLocation, element == "cmi.student_preference.language":
		return len(value) <= 255
	case element == ElemSuspendData:
		return len(value) <= 4096
	case element == "cmi.comments":
		return len(value) <= 4096
	case element == "cmi.student_preference.audio":
		return intIn(value, -1, 100)
	case element == "cmi.student_preference.speed":
		return intIn(value, -100, 100)
	case element == "cmi.student_preference.text":
		return intIn(value, -1, 1)
	case strings.HasPrefix(element, "cmi.interactions."):
		switch leaf {
		case "type":
			return interactionVocab[value]
		case "result":
			return resultVocab[value] || decimalIn(value, -1e12, 1e12)
		case "weighting":
			return decimalIn(value, -1e12, 1e12)
		case "time":
			return timeRegex.MatchString(value)
		}
	}
	return true
}

func decimalIn(value string, min, max float64) bool {
	f, err := strconv.ParseFloat(value, 64)
	return err == nil && f >= min && f <= max
}

func intIn(value string, min, max int) bool {
	i, err := strconv.Atoi(value)
	return err == nil && i >= min && i <= max
}

// arrayCount returns the number of members of array (e.g. cmi.objectives) present in the model.
func arrayCount(model map[string]string, array string) int {
	prefix := array + "."
	count := 0
	for key := range model {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if i := strings.IndexByte(rest, '.'); i > 0 {
			rest = rest[:i]
		}
		if idx, err := strconv.Atoi(rest); err == nil && idx+1 > count {
			count = idx + 1
		}
	}
	return count
}

// normalizeIndices drops array indices: cmi.objectives.2.score becomes cmi.objectives.score.
func normalizeIndices(element string) string {
	parts := strings.Split(element, ".")
	kept := parts[:0]
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

// ParseTimespan parses a CMITimespan (HHHH:MM:SS.SS).
func ParseTimespan(s string) (time.Duration, error) {
	m := timespanRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.Errorf("invalid timespan %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	if min > 59 || sec > 59 {
		return 0, errors.Errorf("invalid timespan %q", s)
	}
	d := time.Duration(h)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second
	if m[4] != "" {
		frac := m[4][1:]
		if len(frac) == 1 {
			frac += "0"
		}
		cs, _ := strconv.Atoi(frac)
		d += time.Duration(cs) * 10 * time.Millisecond
	}
	return d, nil
}

// FormatTimespan renders d as a CMITimespan, e.g. 0001:30:05.50.
func FormatTimespan(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := int64(d / (10 * time.Millisecond))
	h := cs / 360000
	cs -= h * 360000
	m := cs / 6000
	cs -= m * 6000
	sec := cs / 100
	cs -= sec * 100
	if h > 9999 {
		h = 9999
	}
	if cs == 0 {
		return fmt.Sprintf("%04d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%04d:%02d:%02d.%02d", h, m, sec, cs)
}
