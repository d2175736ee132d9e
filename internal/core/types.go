package core

import "vetcore/pkg/domain"

type (
	RecordType    = domain.RecordType
	EventStatus   = domain.EventStatus
	ItemKind      = domain.ItemKind
	LinkKind      = domain.LinkKind
	Base          = domain.Base
	ClinicalEvent = domain.ClinicalEvent
	RecordItem    = domain.RecordItem
	Record        = domain.Record
	Link          = domain.Link
	EventQuery    = domain.EventQuery
	RecordStore   = domain.RecordStore
)

const (
	StatusInProgress = domain.StatusInProgress
	StatusCompleted  = domain.StatusCompleted
)

const (
	KindNote          = domain.KindNote
	KindMedication    = domain.KindMedication
	KindInvestigation = domain.KindInvestigation
	KindProblem       = domain.KindProblem
	KindDocument      = domain.KindDocument
	KindCharge        = domain.KindCharge
	KindAddendum      = domain.KindAddendum
)

const (
	LinkEventItem    = domain.LinkEventItem
	LinkEventCharge  = domain.LinkEventCharge
	LinkProblemItem  = domain.LinkProblemItem
	LinkItemDocument = domain.LinkItemDocument
	LinkItemAddendum = domain.LinkItemAddendum
)
