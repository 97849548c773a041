package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/communitybot/feedwatch/pkg/models"
)

type eventItem struct {
	event models.Event
	loc   *time.Location
}

func (i eventItem) Title() string {
	return i.event.Title
}

func (i eventItem) Description() string {
	return fmt.Sprintf("%s | %s", i.event.StartsAt.In(i.loc).Format("Mon Jan 2, 3:04 PM"), i.event.Location)
}

func (i eventItem) FilterValue() string {
	return i.event.Title
}

func (i eventItem) Link() string { return i.event.Link }

type bountyItem struct {
	bounty models.Bounty
}

func (i bountyItem) Title() string {
	return i.bounty.Title
}

func (i bountyItem) Description() string {
	deadline := i.bounty.Deadline
	if deadline != models.DeadlineTBD {
		deadline = "due in " + deadline
	}
	return fmt.Sprintf("%s | %s", i.bounty.Reward, deadline)
}

func (i bountyItem) FilterValue() string {
	return i.bounty.Title
}

func (i bountyItem) Link() string { return i.bounty.Link }

// linked is a list entry that can be opened in a browser.
type linked interface {
	list.Item
	Link() string
}

var (
	_ linked = eventItem{}
	_ linked = bountyItem{}
)
