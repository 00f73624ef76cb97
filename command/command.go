package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/galechat/galechat/chat"
	"github.com/galechat/galechat/format"
)

// ErrUnknownCommand is returned for command words the dispatcher does not
// know.
var ErrUnknownCommand = errors.New("unknown command")

// handler executes one command for the caller. args excludes the command
// word itself. The returned string is the reply shown to the caller only.
type handler func(d *Dispatcher, caller *chat.Chatter, args []string) (string, error)

type command struct {
	handler handler
	usage   string
	help    string
}

// Dispatcher parses "/command arg..." lines and runs them against the
// registry. Everything that is not a command line is ordinary chat and is
// the transport's business, not the dispatcher's.
type Dispatcher struct {
	reg      *chat.Registry
	commands map[string]command
}

func NewDispatcher(reg *chat.Registry) *Dispatcher {
	d := &Dispatcher{reg: reg}
	d.commands = map[string]command{
		"join":     {(*Dispatcher).cmdJoin, "/join <channel> [password]", "join a channel and make it active"},
		"leave":    {(*Dispatcher).cmdLeave, "/leave <channel>", "leave a channel"},
		"who":      {(*Dispatcher).cmdWho, "/who [channel]", "list the listeners of a channel"},
		"channels": {(*Dispatcher).cmdChannels, "/channels", "list all channels"},
		"create":   {(*Dispatcher).cmdCreate, "/create <channel>", "create a new channel"},
		"invite":   {(*Dispatcher).cmdInvite, "/invite <chatter> [channel]", "invite a chatter to a channel"},
		"ban":      {(*Dispatcher).cmdBan, "/ban <chatter> [channel|reason] [reason...]", "ban a chatter from a channel"},
		"unban":    {(*Dispatcher).cmdUnban, "/unban <chatter> [channel]", "lift a ban"},
		"kick":     {(*Dispatcher).cmdKick, "/kick <chatter> [channel|reason] [reason...]", "kick a chatter from a channel"},
		"mute":     {(*Dispatcher).cmdMute, "/mute <chatter> [channel]", "mute a chatter in a channel"},
		"unmute":   {(*Dispatcher).cmdUnmute, "/unmute <chatter> [channel]", "lift a mute"},
		"pass":     {(*Dispatcher).cmdPass, "/pass <password|off> [channel]", "set or clear the channel password"},
		"radius":   {(*Dispatcher).cmdRadius, "/radius <channel> <blocks>", "set the channel audibility radius"},
		"censor":   {(*Dispatcher).cmdCensor, "/censor <channel> <word> [replacement]", "censor a word in a channel"},
		"uncensor": {(*Dispatcher).cmdUncensor, "/uncensor <channel> <word>", "lift a word censor"},
		"qm":       {(*Dispatcher).cmdQuitMessage, "/qm [message...]", "set or clear your quit message"},
		"pm":       {(*Dispatcher).cmdPrivateMessage, "/pm <chatter> <message...>", "send a private message"},
		"reply":    {(*Dispatcher).cmdReply, "/reply <message...>", "reply to the last private message"},
		"help":     {(*Dispatcher).cmdHelp, "/help", "list the available commands"},
	}
	d.commands["msg"] = d.commands["pm"]
	d.commands["r"] = d.commands["reply"]
	return d
}

// IsCommand reports whether the line is a command line.
func IsCommand(line string) bool {
	return strings.HasPrefix(line, "/")
}

// Execute parses and runs one command line for the caller. The returned
// string, when not empty, is delivered to the caller only. Errors are
// translated into user-facing messages by Explain.
func (d *Dispatcher) Execute(caller *chat.Chatter, line string) (string, error) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return "", errors.Wrap(ErrUnknownCommand, "empty command")
	}
	word := strings.ToLower(fields[0])
	cmd, ok := d.commands[word]
	if !ok {
		return "", errors.Wrap(ErrUnknownCommand, word)
	}
	reply, err := cmd.handler(d, caller, fields[1:])
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Explain turns an error from Execute into the message shown to the caller.
func Explain(err error) string {
	var usage usageErr
	switch {
	case err == nil:
		return ""
	case errors.As(err, &usage):
		return "Usage: " + usage.usage
	case errors.Is(err, ErrUnknownCommand):
		return "Unknown command. Try /help."
	case errors.Is(err, chat.ErrChannelNotFound):
		return "No such channel."
	case errors.Is(err, chat.ErrChatterNotFound):
		return "No such chatter."
	case errors.Is(err, chat.ErrAlreadyActiveMember):
		return "You are already in that channel."
	case errors.Is(err, chat.ErrPasswordRequired):
		return "That channel requires a password."
	case errors.Is(err, chat.ErrInviteOnly):
		return "That channel is invite only."
	case errors.Is(err, chat.ErrCannotLeaveActiveChannel):
		return "You cannot leave your active channel."
	case errors.Is(err, chat.ErrCannotActOnDefaultChannel):
		return "Not allowed on the default channel."
	case errors.Is(err, chat.ErrPermissionDenied):
		return "You do not have permission to do that."
	case errors.Is(err, chat.ErrAccessDenied):
		return "Access denied."
	default:
		return "Something went wrong: " + err.Error()
	}
}

func (d *Dispatcher) cmdJoin(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("join")
	}
	channel, err := d.reg.LookupChannel(args[0])
	if err != nil {
		return "", err
	}
	password := ""
	if len(args) > 1 {
		password = args[1]
	}
	if err := d.reg.JoinChannel(caller, channel, password); err != nil {
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) cmdLeave(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("leave")
	}
	channel, err := d.reg.LookupChannel(args[0])
	if err != nil {
		return "", err
	}
	return "", caller.Leave(channel, "")
}

func (d *Dispatcher) cmdWho(caller *chat.Chatter, args []string) (string, error) {
	channel, err := d.channelArg(caller, args, 0)
	if err != nil {
		return "", err
	}
	listeners := channel.Listeners()
	if len(listeners) == 0 {
		return fmt.Sprintf("Nobody is listening to %s.", channel.Name()), nil
	}
	return fmt.Sprintf("Listening to %s: %s", channel.Name(), strings.Join(listeners, ", ")), nil
}

func (d *Dispatcher) cmdChannels(caller *chat.Chatter, args []string) (string, error) {
	names := make([]string, 0)
	for _, channel := range d.reg.Channels() {
		names = append(names, channel.Name())
	}
	return "Channels: " + strings.Join(names, ", "), nil
}

func (d *Dispatcher) cmdCreate(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("create")
	}
	if !d.reg.HasPermission(caller.Name(), "create."+args[0]) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "create %s", args[0])
	}
	channel, err := d.reg.CreateChannel(args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Channel %s created.", channel.Name()), nil
}

func (d *Dispatcher) cmdInvite(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("invite")
	}
	target, err := d.reg.LookupChatter(args[0])
	if err != nil {
		return "", err
	}
	channel, err := d.channelArg(caller, args, 1)
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "invite."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "invite to %s", channel.Name())
	}
	target.Invite(channel)
	return fmt.Sprintf("%s has been invited to %s.", target.Name(), channel.Name()), nil
}

func (d *Dispatcher) cmdBan(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("ban")
	}
	target, err := d.reg.LookupChatter(args[0])
	if err != nil {
		return "", err
	}
	channel, reason, err := d.channelOrReason(caller, args, 1)
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "ban."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "ban from %s", channel.Name())
	}
	if err := target.Ban(channel, reason); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s has been banned from %s.", target.Name(), channel.Name()), nil
}

func (d *Dispatcher) cmdUnban(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("unban")
	}
	channel, err := d.channelArg(caller, args, 1)
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "ban."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "unban from %s", channel.Name())
	}
	channel.Unban(args[0])
	return fmt.Sprintf("%s is no longer banned from %s.", args[0], channel.Name()), nil
}

func (d *Dispatcher) cmdKick(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("kick")
	}
	target, err := d.reg.LookupChatter(args[0])
	if err != nil {
		return "", err
	}
	channel, reason, err := d.channelOrReason(caller, args, 1)
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "kick."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "kick from %s", channel.Name())
	}
	if err := target.Kick(channel, reason); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s has been kicked from %s.", target.Name(), channel.Name()), nil
}

func (d *Dispatcher) cmdMute(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("mute")
	}
	channel, err := d.channelArg(caller, args, 1)
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "mute."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "mute in %s", channel.Name())
	}
	channel.Mute(args[0])
	return fmt.Sprintf("%s has been muted in %s.", args[0], channel.Name()), nil
}

func (d *Dispatcher) cmdUnmute(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("unmute")
	}
	channel, err := d.channelArg(caller, args, 1)
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "mute."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "unmute in %s", channel.Name())
	}
	channel.Unmute(args[0])
	return fmt.Sprintf("%s is no longer muted in %s.", args[0], channel.Name()), nil
}

func (d *Dispatcher) cmdPass(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("pass")
	}
	channel, err := d.channelArg(caller, args, 1)
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "pass."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "set password of %s", channel.Name())
	}
	if strings.EqualFold(args[0], "off") {
		channel.SetPassword("")
		return fmt.Sprintf("Password of %s cleared.", channel.Name()), nil
	}
	channel.SetPassword(args[0])
	return fmt.Sprintf("Password of %s set.", channel.Name()), nil
}

func (d *Dispatcher) cmdRadius(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 2 {
		return "", d.usageError("radius")
	}
	channel, err := d.reg.LookupChannel(args[0])
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "radius."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "set radius of %s", channel.Name())
	}
	radius, err := strconv.Atoi(args[1])
	if err != nil {
		return "", d.usageError("radius")
	}
	channel.SetRadius(radius)
	if radius <= 0 {
		return fmt.Sprintf("%s is now heard everywhere.", channel.Name()), nil
	}
	return fmt.Sprintf("Radius of %s set to %d.", channel.Name(), radius), nil
}

func (d *Dispatcher) cmdCensor(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 2 {
		return "", d.usageError("censor")
	}
	channel, err := d.reg.LookupChannel(args[0])
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "censor."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "censor in %s", channel.Name())
	}
	replacement := ""
	if len(args) > 2 {
		replacement = args[2]
	}
	channel.CensorWord(args[1], replacement)
	return fmt.Sprintf("%q is now censored in %s.", args[1], channel.Name()), nil
}

func (d *Dispatcher) cmdUncensor(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 2 {
		return "", d.usageError("uncensor")
	}
	channel, err := d.reg.LookupChannel(args[0])
	if err != nil {
		return "", err
	}
	if !d.reg.HasPermission(caller.Name(), "censor."+channel.Name()) {
		return "", errors.Wrapf(chat.ErrPermissionDenied, "uncensor in %s", channel.Name())
	}
	channel.UncensorWord(args[1])
	return fmt.Sprintf("%q is no longer censored in %s.", args[1], channel.Name()), nil
}

func (d *Dispatcher) cmdQuitMessage(caller *chat.Chatter, args []string) (string, error) {
	message := strings.Join(args, " ")
	caller.SetQuitMessage(message)
	if message == "" {
		return "Quit message cleared.", nil
	}
	return "Quit message set.", nil
}

func (d *Dispatcher) cmdPrivateMessage(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 2 {
		return "", d.usageError("pm")
	}
	target, err := d.reg.LookupChatter(args[0])
	if err != nil {
		return "", err
	}
	caller.SendPrivateMessage(target, strings.Join(args[1:], " "))
	return "", nil
}

func (d *Dispatcher) cmdReply(caller *chat.Chatter, args []string) (string, error) {
	if len(args) < 1 {
		return "", d.usageError("reply")
	}
	if err := caller.Reply(strings.Join(args, " ")); err != nil {
		if errors.Is(err, chat.ErrNoLastSender) {
			return "Nobody has sent you a private message yet.", nil
		}
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) cmdHelp(caller *chat.Chatter, args []string) (string, error) {
	lines := make([]string, 0, len(d.commands))
	seen := make(map[string]struct{})
	for _, cmd := range d.commands {
		if _, ok := seen[cmd.usage]; ok {
			continue
		}
		seen[cmd.usage] = struct{}{}
		lines = append(lines, cmd.usage+" - "+cmd.help)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

// channelArg resolves the channel argument at idx, falling back to the
// caller's active channel when the argument is absent.
func (d *Dispatcher) channelArg(caller *chat.Chatter, args []string, idx int) (*chat.Channel, error) {
	if len(args) > idx {
		return d.reg.LookupChannel(args[idx])
	}
	return d.reg.LookupChannel(caller.ActiveChannel())
}

func reasonArg(args []string, idx int) *format.Template {
	if len(args) <= idx {
		return nil
	}
	return format.Parse(strings.Join(args[idx:], " "))
}

// channelOrReason resolves the ambiguous argument at idx: a name of an
// existing channel selects that channel, anything else starts the reason
// and the caller's active channel is used.
func (d *Dispatcher) channelOrReason(caller *chat.Chatter, args []string, idx int) (*chat.Channel, *format.Template, error) {
	if len(args) > idx {
		if channel, err := d.reg.LookupChannel(args[idx]); err == nil {
			return channel, reasonArg(args, idx+1), nil
		}
	}
	channel, err := d.reg.LookupChannel(caller.ActiveChannel())
	if err != nil {
		return nil, nil, err
	}
	return channel, reasonArg(args, idx), nil
}

// usageErr is returned for command lines with missing or malformed
// arguments, Explain renders the usage string.
type usageErr struct {
	usage string
}

func (e usageErr) Error() string {
	return "usage: " + e.usage
}

func (d *Dispatcher) usageError(word string) error {
	return usageErr{usage: d.commands[word].usage}
}
