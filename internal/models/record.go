package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawRecord - строка удалённой таблицы в том виде, в каком её отдаёт API.
type RawRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// Имена полей таблицы статей.
const (
	FieldTitle          = "Title"
	FieldURL            = "URL"
	FieldSource         = "Source"
	FieldContentPreview = "Content_Preview"
	FieldPublication    = "Publication_Date"
	FieldIndustry       = "Industry"
	FieldRelevanceScore = "Relevance_Score"
	FieldAISummary      = "AI_Summary"
	FieldAIKeyPoints    = "AI_Key_Points"
	FieldSentiment      = "Sentiment"
	FieldStatus         = "Status"
	FieldLinkedInCopy   = "LinkedIn_Copy"
	FieldTwitterCopy    = "Twitter_Copy"
	FieldIntranetCopy   = "Intranet_Copy"
	FieldTags           = "Tags"
)

// Имена полей таблицы метрик запусков.
const (
	FieldTotalFetched  = "Total_Articles_Fetched"
	FieldAnalyzed      = "Articles_Analyzed"
	FieldAverageScore  = "Average_Relevance_Score"
	FieldTopIndustry   = "Top_Industry"
	FieldApproved      = "Articles_Approved"
	FieldDate          = "Date"
	FieldExecutionTime = "Execution_Time_Seconds"
)

const noIndustry = "N/A"

// ToArticle переводит запись таблицы в Article. Отсутствующие и некорректные поля
// заменяются значениями по умолчанию, функция никогда не завершается ошибкой.
func ToArticle(raw RawRecord) Article {
	f := raw.Fields
	return Article{
		ID:              raw.ID,
		Title:           stringField(f, FieldTitle),
		URL:             stringField(f, FieldURL),
		Source:          stringField(f, FieldSource),
		ContentPreview:  stringField(f, FieldContentPreview),
		PublicationDate: stringField(f, FieldPublication),
		Industry:        stringsField(f, FieldIndustry),
		RelevanceScore:  numberField(f, FieldRelevanceScore),
		Sentiment:       ParseSentiment(stringField(f, FieldSentiment)),
		Status:          ParseStatus(stringField(f, FieldStatus)),
		AISummary:       stringField(f, FieldAISummary),
		AIKeyPoints:     stringField(f, FieldAIKeyPoints),
		LinkedInCopy:    stringField(f, FieldLinkedInCopy),
		TwitterCopy:     stringField(f, FieldTwitterCopy),
		IntranetCopy:    stringField(f, FieldIntranetCopy),
		Tags:            stringsField(f, FieldTags),
	}
}

// ToRunMetrics переводит запись журнала запусков в RunMetrics.
func ToRunMetrics(raw RawRecord) RunMetrics {
	f := raw.Fields
	top := stringField(f, FieldTopIndustry)
	if top == "" {
		top = noIndustry
	}
	return RunMetrics{
		TotalFetched:   int(numberField(f, FieldTotalFetched)),
		Analyzed:       int(numberField(f, FieldAnalyzed)),
		Approved:       int(numberField(f, FieldApproved)),
		AverageScore:   RoundTenth(numberField(f, FieldAverageScore)),
		TopIndustry:    top,
		LastRunAt:      stringField(f, FieldDate),
		LastRunSeconds: numberField(f, FieldExecutionTime),
	}
}

// RoundTenth округляет до одного знака после запятой.
func RoundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// stringsField читает поле-список (multiple select). Значения обрезаются по краям,
// пустые отбрасываются: пустая отрасль или тег не участвуют ни в фильтрах, ни
// в статистике. Одиночная строка вместо списка даёт список из одного элемента.
func stringsField(fields map[string]any, key string) []string {
	out := []string{}
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch v := fields[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	case string:
		add(v)
	}
	return out
}

func numberField(fields map[string]any, key string) float64 {
	var n float64
	switch v := fields[key].(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		n = f
	default:
		return 0
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}
