package trello

import (
	"strings"
	"time"

	"github.com/evanschultz/cardclock/internal/domain"
)

// Trello action types requested from the card actions endpoint.
const (
	actionCreateCard = "createCard"
	actionUpdateCard = "updateCard"
	actionFilter     = "createCard,updateCard:idList,updateCard"
)

type listDTO struct {
	ID      string `json:"id"`
	IDBoard string `json:"idBoard"`
	Name    string `json:"name"`
}

func (d listDTO) toDomain() domain.List {
	return domain.List{ID: d.ID, BoardID: d.IDBoard, Name: d.Name}
}

type cardDTO struct {
	ID          string     `json:"id"`
	IDBoard     string     `json:"idBoard"`
	IDList      string     `json:"idList"`
	Name        string     `json:"name"`
	Due         *time.Time `json:"due"`
	DueComplete bool       `json:"dueComplete"`
	IDMembers   []string   `json:"idMembers"`
}

func (d cardDTO) toDomain() domain.Card {
	card := domain.Card{
		ID:          d.ID,
		BoardID:     d.IDBoard,
		ListID:      d.IDList,
		Name:        d.Name,
		DueComplete: d.DueComplete,
		MemberIDs:   append([]string(nil), d.IDMembers...),
	}
	if d.Due != nil {
		due := d.Due.UTC()
		card.Due = &due
	}
	return card
}

type listRefDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (d *listRefDTO) toDomain() domain.ListRef {
	if d == nil {
		return domain.ListRef{}
	}
	return domain.ListRef{ID: d.ID, Name: d.Name}
}

type actionCardDTO struct {
	ID          string `json:"id"`
	DueComplete *bool  `json:"dueComplete"`
}

type actionOldDTO struct {
	IDList      *string `json:"idList"`
	DueComplete *bool   `json:"dueComplete"`
}

type actionDataDTO struct {
	Card       actionCardDTO `json:"card"`
	Old        actionOldDTO  `json:"old"`
	List       *listRefDTO   `json:"list"`
	ListBefore *listRefDTO   `json:"listBefore"`
	ListAfter  *listRefDTO   `json:"listAfter"`
}

type actionDTO struct {
	ID   string        `json:"id"`
	Type string        `json:"type"`
	Date time.Time     `json:"date"`
	Data actionDataDTO `json:"data"`
}

// toDomain classifies the raw action once into the domain tagged union.
func (d actionDTO) toDomain() domain.Action {
	action := domain.Action{
		ID:     d.ID,
		CardID: d.Data.Card.ID,
		Kind:   domain.ActionOther,
		Date:   d.Date.UTC(),
	}
	switch d.Type {
	case actionCreateCard:
		action.Kind = domain.ActionCreated
		action.List = d.Data.List.toDomain()
	case actionUpdateCard:
		switch {
		case d.Data.ListAfter != nil && d.Data.ListBefore != nil:
			action.Kind = domain.ActionMoved
			action.ListBefore = d.Data.ListBefore.toDomain()
			action.ListAfter = d.Data.ListAfter.toDomain()
		case d.Data.Old.DueComplete != nil && !*d.Data.Old.DueComplete &&
			d.Data.Card.DueComplete != nil && *d.Data.Card.DueComplete:
			action.Kind = domain.ActionCompleted
		}
	}
	return action
}

type customFieldOptionDTO struct {
	ID    string            `json:"id"`
	Value map[string]string `json:"value"`
}

type customFieldDTO struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	Type    string                 `json:"type"`
	Options []customFieldOptionDTO `json:"options"`
}

func (d customFieldDTO) toDomain() domain.CustomFieldDefinition {
	def := domain.CustomFieldDefinition{ID: d.ID, Name: d.Name, Type: d.Type}
	for _, opt := range d.Options {
		def.Options = append(def.Options, domain.CustomFieldOption{ID: opt.ID, Value: scalarValue(opt.Value)})
	}
	return def
}

type customFieldItemDTO struct {
	ID            string            `json:"id"`
	IDCustomField string            `json:"idCustomField"`
	IDValue       string            `json:"idValue"`
	Value         map[string]string `json:"value"`
}

func (d customFieldItemDTO) toDomain() domain.CustomFieldValue {
	return domain.CustomFieldValue{
		FieldID:  d.IDCustomField,
		Text:     scalarValue(d.Value),
		OptionID: d.IDValue,
	}
}

// scalarValue picks the populated entry of a custom field value object.
func scalarValue(value map[string]string) string {
	for _, key := range []string{"text", "number", "date", "checked"} {
		if v := strings.TrimSpace(value[key]); v != "" {
			return v
		}
	}
	return ""
}

type memberDTO struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Username string `json:"username"`
}

func (d memberDTO) toDomain() domain.Member {
	return domain.Member{ID: d.ID, FullName: d.FullName, Username: d.Username}
}
