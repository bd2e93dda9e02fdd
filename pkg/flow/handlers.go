package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"confessd/pkg/models"
	"confessd/pkg/store"
)

// handlers is the closed dispatch table, keyed by step.
var handlers = map[Step]Handler{
	StepButtonName:       handleButtonName,
	StepButtonContent:    handleButtonContent,
	StepButtonLinks:      handleButtonLinks,
	StepChannelName:      handleChannelName,
	StepChannelLink:      handleChannelLink,
	StepBroadcastText:    handleBroadcastText,
	StepBroadcastConfirm: handleBroadcastConfirm,
	StepNickname:         handleNickname,
	StepBio:              handleBio,
	StepEmoji:            handleEmoji,
	StepConfession:       handleConfession,
	StepComment:          handleComment,
	StepReply:            handleReply,
}

// handleButtonName is the continuation step collecting the new button's
// label.
func handleButtonName(c *Ctx) error {
	name := strings.TrimSpace(c.Input)
	if name == "" {
		return c.reply("The button needs a name. Send the label text, or 'cancel'.")
	}
	c.Draft.ButtonLabel = name
	return c.advance(StepButtonContent, "Now send the content shown when the button is tapped.")
}

// handleButtonContent collects the body and moves to the optional link
// decoration step.
func handleButtonContent(c *Ctx) error {
	content := strings.TrimSpace(c.Input)
	if content == "" {
		return c.reply("Content cannot be empty. Send the button content, or 'cancel'.")
	}
	c.Draft.ButtonContent = content
	return c.advance(StepButtonLinks, "Optionally send hyperlinks, one per line as 'label - url'. Send 'skip' for none.")
}

// handleButtonLinks is the terminal step of button authoring. It parses
// the optional trailing hyperlink block and registers the button.
func handleButtonLinks(c *Ctx) error {
	var links []models.Link
	if !strings.EqualFold(strings.TrimSpace(c.Input), "skip") {
		var err error
		links, err = ParseLinkLines(c.Input)
		if err != nil {
			return c.reply(fmt.Sprintf("%v. Send the links again, one per line as 'label - url', or 'skip'.", err))
		}
	}
	b := models.Button{
		Label:     c.Draft.ButtonLabel,
		Content:   c.Draft.ButtonContent,
		Links:     links,
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	if err := store.SaveButton(b); err != nil {
		if errors.Is(err, store.ErrLabelTaken) {
			// report the named conflict but still clear the flow so the
			// actor is not locked in
			return c.finish(fmt.Sprintf("A button named %q already exists. Flow cancelled.", b.Label))
		}
		return err
	}
	return c.finish(fmt.Sprintf("Button %q registered.", b.Label))
}

// handleChannelName is the first of the two-step channel registration.
func handleChannelName(c *Ctx) error {
	name := strings.TrimSpace(c.Input)
	if name == "" {
		return c.reply("The channel needs a name. Send it, or 'cancel'.")
	}
	c.Draft.ChannelName = name
	return c.advance(StepChannelLink, "Now send the channel link.")
}

// handleChannelLink validates and stores the channel registration.
func handleChannelLink(c *Ctx) error {
	link := strings.TrimSpace(c.Input)
	if !ValidURL(link) {
		return c.reply("That does not look like a link (must start with http://, https:// or tg://). Try again, or 'cancel'.")
	}
	ch := models.Channel{
		Name:      c.Draft.ChannelName,
		Link:      link,
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	if err := store.SaveChannel(ch); err != nil {
		if errors.Is(err, store.ErrLabelTaken) {
			return c.finish(fmt.Sprintf("A channel named %q already exists. Flow cancelled.", ch.Name))
		}
		return err
	}
	return c.finish(fmt.Sprintf("Channel %q registered.", ch.Name))
}

// handleBroadcastText stages the broadcast body and asks for audience
// confirmation.
func handleBroadcastText(c *Ctx) error {
	text := strings.TrimSpace(c.Input)
	if text == "" {
		return c.reply("Broadcast text cannot be empty. Send it, or 'cancel'.")
	}
	ids, err := store.ListActorIDs()
	if err != nil {
		return err
	}
	c.Draft.BroadcastText = text
	return c.advance(StepBroadcastConfirm,
		fmt.Sprintf("This will be sent to %d actors. Reply 'confirm' to send, or 'cancel'.", len(ids)))
}

// handleBroadcastConfirm is gated by the literal confirm command and
// otherwise re-prompts without advancing.
func handleBroadcastConfirm(c *Ctx) error {
	if !strings.EqualFold(strings.TrimSpace(c.Input), "confirm") {
		return c.reply("Reply 'confirm' to send the broadcast, or 'cancel'.")
	}
	ids, err := store.ListActorIDs()
	if err != nil {
		return err
	}
	text := c.Draft.BroadcastText
	adminChat := c.ChatID
	send := c.Env.Send
	c.Env.Out.EnqueueBatch(ids, text, func(sent, failed int) {
		// summary lands after the batch drains, well outside the webhook
		// deadline
		_, _ = send.SendMessage(adminChat, fmt.Sprintf("Broadcast done: %d delivered, %d failed.", sent, failed), nil)
	})
	return c.finish(fmt.Sprintf("Broadcast staged for %d actors.", len(ids)))
}

func handleNickname(c *Ctx) error {
	nick := strings.TrimSpace(c.Input)
	if nick == "" {
		return c.reply("Nickname cannot be empty. Send it, or 'cancel'.")
	}
	c.Actor.Profile.Nickname = nick
	if err := store.SaveActor(c.Actor); err != nil {
		return err
	}
	return c.finish(fmt.Sprintf("Nickname set to %s.", nick))
}

func handleBio(c *Ctx) error {
	bio := strings.TrimSpace(c.Input)
	if bio == "" {
		return c.reply("Bio cannot be empty. Send it, or 'cancel'.")
	}
	c.Actor.Profile.Bio = bio
	if err := store.SaveActor(c.Actor); err != nil {
		return err
	}
	return c.finish("Bio updated.")
}

func handleEmoji(c *Ctx) error {
	emoji := strings.TrimSpace(c.Input)
	if emoji == "" {
		return c.reply("Send an emoji, or 'cancel'.")
	}
	c.Actor.Profile.Emoji = emoji
	if err := store.SaveActor(c.Actor); err != nil {
		return err
	}
	return c.finish("Profile emoji updated.")
}

// handleConfession is the terminal submission step of the content board.
func handleConfession(c *Ctx) error {
	text := strings.TrimSpace(c.Input)
	if text == "" {
		return c.reply("Your confession is empty. Send the text, or 'cancel'.")
	}
	if _, err := c.Env.Board.Submit(c.Actor, text); err != nil {
		return err
	}
	return c.finish("Your confession was submitted and awaits moderation.")
}

func handleComment(c *Ctx) error {
	text := strings.TrimSpace(c.Input)
	if text == "" {
		return c.reply("Comment cannot be empty. Send the text, or 'cancel'.")
	}
	if _, err := c.Env.Board.Comment(c.Actor, c.Draft.ConfessionID, text); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.finish("That confession no longer exists.")
		}
		return err
	}
	return c.finish(fmt.Sprintf("Comment posted. +%d aura!", c.Env.Cfg.Board.CommentAward))
}

func handleReply(c *Ctx) error {
	text := strings.TrimSpace(c.Input)
	if text == "" {
		return c.reply("Reply cannot be empty. Send the text, or 'cancel'.")
	}
	if _, err := c.Env.Board.ReplyTo(c.Actor, c.Draft.CommentID, text); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.finish("That comment no longer exists.")
		}
		return err
	}
	return c.finish("Reply posted.")
}
