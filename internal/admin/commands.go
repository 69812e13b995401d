// Package admin is the operator command surface: text commands such as
// /queue or /delay, and the HTTP API that carries them.
package admin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pders01/feedq/internal/debuglog"
	"github.com/pders01/feedq/internal/relay"
)

const timeLayout = "2006-01-02 15:04:05"

const HelpText = `Available commands:

/help
Show this message

/queue
Show the publication queue

/queue_get <guid>
Show a queued item

/queue_del <guid>
Remove an item from the queue

/queue_delay <guid> <minutes>
Publish an item <minutes> from now

/delay <minutes>
Set the delay between publications

/delay
Show the current delay`

const (
	replyEmpty    = "Queue is empty"
	replyNotFound = "Not found"
	replyDeleted  = "Deleted"

	usageGet   = "Usage: /queue_get <guid>"
	usageDel   = "Usage: /queue_del <guid>"
	usageDelay = "Usage: /queue_delay <guid> <minutes>"
	usageSet   = "Usage: /delay <minutes>"
)

// Commands executes operator text commands against the relay service.
type Commands struct {
	svc   *relay.Service
	users map[string]struct{}
	loc   *time.Location
	log   *debuglog.FieldLogger
}

// NewCommands allows the given usernames. A leading @ is ignored.
func NewCommands(svc *relay.Service, users []string) *Commands {
	allowed := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u = normalizeUser(u); u != "" {
			allowed[u] = struct{}{}
		}
	}
	return &Commands{
		svc:   svc,
		users: allowed,
		loc:   time.Local,
		log:   debuglog.WithFields(map[string]any{"component": "commands"}),
	}
}

// SetLocation changes the zone publish times are shown in.
func (c *Commands) SetLocation(loc *time.Location) {
	c.loc = loc
}

func normalizeUser(u string) string {
	return strings.TrimPrefix(strings.TrimSpace(u), "@")
}

// Authorized reports whether user may run commands.
func (c *Commands) Authorized(user string) bool {
	_, ok := c.users[normalizeUser(user)]
	return ok
}

// Execute runs one command line for user. The bool result is false when
// nothing should be sent back: the caller is not allowed or the command
// is unknown.
func (c *Commands) Execute(user, text string) (string, bool, error) {
	if !c.Authorized(user) {
		c.log.With("user", user).Warnf("rejected command from unauthorized caller")
		return "", false, nil
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false, nil
	}
	// "/queue@somebot" addresses a specific bot in group chats.
	name, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	c.log.With("user", user).Debugf("command %s %v", name, args)

	switch name {
	case "/help", "/start":
		return HelpText, true, nil
	case "/queue":
		reply, err := c.queue()
		return reply, true, err
	case "/queue_get":
		reply, err := c.queueGet(args)
		return reply, true, err
	case "/queue_del":
		reply, err := c.queueDel(args)
		return reply, true, err
	case "/queue_delay":
		reply, err := c.queueDelay(args)
		return reply, true, err
	case "/delay":
		reply, err := c.delay(args)
		return reply, true, err
	default:
		return "", false, nil
	}
}

func (c *Commands) formatTime(unix int64) string {
	return time.Unix(unix, 0).In(c.loc).Format(timeLayout)
}

func (c *Commands) queue() (string, error) {
	records, err := c.svc.List()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return replyEmpty, nil
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		title := ""
		if p, err := rec.Decode(); err == nil {
			title = p.Title
		}
		lines = append(lines, fmt.Sprintf("%s\n%s\n🕒 %s\n", rec.GUID, title, c.formatTime(rec.PublishAt)))
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Commands) queueGet(args []string) (string, error) {
	if len(args) == 0 {
		return usageGet, nil
	}
	rec, found, err := c.svc.Get(args[0])
	if err != nil {
		return "", err
	}
	if !found {
		return replyNotFound, nil
	}
	return fmt.Sprintf("GUID: %s\n🕒 %s\n\n%s", rec.GUID, c.formatTime(rec.PublishAt), rec.Payload), nil
}

func (c *Commands) queueDel(args []string) (string, error) {
	if len(args) == 0 {
		return usageDel, nil
	}
	if err := c.svc.Delete(args[0]); err != nil {
		return "", err
	}
	return replyDeleted, nil
}

func (c *Commands) queueDelay(args []string) (string, error) {
	if len(args) != 2 {
		return usageDelay, nil
	}
	minutes, ok := parseMinutes(args[1])
	if !ok {
		return usageDelay, nil
	}

	_, found, err := c.svc.Reschedule(args[0], minutes)
	if err != nil {
		return "", err
	}
	if !found {
		return replyNotFound, nil
	}
	return fmt.Sprintf("New publish time in %d minutes", minutes), nil
}

func (c *Commands) delay(args []string) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("Current delay: %d minutes", c.svc.Delay()), nil
	}
	minutes, ok := parseMinutes(args[0])
	if !ok {
		return usageSet, nil
	}
	if err := c.svc.SetDelay(minutes); err != nil {
		return "", err
	}
	return fmt.Sprintf("Delay set: %d minutes", minutes), nil
}

// parseMinutes accepts only plain decimal digits, so signs and spaces are
// rejected, and values too large to schedule.
func parseMinutes(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !relay.ValidMinutes(n) {
		return 0, false
	}
	return n, true
}
