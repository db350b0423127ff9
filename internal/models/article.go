package models

import "slices"

// Sentiment - тональность статьи по оценке внешнего анализатора.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
	SentimentMixed    Sentiment = "Mixed"
)

// Status - статус модерации статьи. New и Analyzed выставляет внешний процесс,
// дашборд сам меняет статус только на Approved или Rejected.
type Status string

const (
	StatusNew      Status = "New"
	StatusAnalyzed Status = "Analyzed"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// ParseSentiment возвращает Neutral для пустых и неизвестных значений.
func ParseSentiment(s string) Sentiment {
	switch v := Sentiment(s); v {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentMixed:
		return v
	}
	return SentimentNeutral
}

// ParseStatus возвращает New для пустых и неизвестных значений.
func ParseStatus(s string) Status {
	switch v := Status(s); v {
	case StatusNew, StatusAnalyzed, StatusApproved, StatusRejected:
		return v
	}
	return StatusNew
}

// Reviewable сообщает, может ли оператор выставить этот статус.
func (s Status) Reviewable() bool {
	return s == StatusApproved || s == StatusRejected
}

// Article - статья из таблицы контента. ID назначает удалённое хранилище.
type Article struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Source          string    `json:"source"`
	ContentPreview  string    `json:"content_preview"`
	PublicationDate string    `json:"publication_date"`
	Industry        []string  `json:"industry"`
	RelevanceScore  float64   `json:"relevance_score"`
	Sentiment       Sentiment `json:"sentiment"`
	Status          Status    `json:"status"`
	AISummary       string    `json:"ai_summary"`
	AIKeyPoints     string    `json:"ai_key_points"`
	LinkedInCopy    string    `json:"linkedin_copy"`
	TwitterCopy     string    `json:"twitter_copy"`
	IntranetCopy    string    `json:"intranet_copy"`
	Tags            []string  `json:"tags"`
}

// Clone возвращает копию статьи, не разделяющую срезы с оригиналом.
func (a Article) Clone() Article {
	a.Industry = slices.Clone(a.Industry)
	a.Tags = slices.Clone(a.Tags)
	return a
}
