package engine

import "strings"

// Action is a decoded button token: a short verb plus its parameters.
// Tokens are encoded as verb and params joined by underscores, e.g.
// vote_up_<itemId>, browse_<page>, reason_<code>_<ownerId>.
type Action struct {
	Verb string
	Args []string
}

// paramVerbs lists the verbs that carry a trailing parameter block.
// Longest verbs come first so prefix matching is unambiguous
// (vote_up before vote_..., view_conf before view_...).
var paramVerbs = []string{
	"cvote_up",
	"cvote_down",
	"vote_up",
	"vote_down",
	"view_conf",
	"view_com",
	"browse",
	"approve",
	"reject",
	"comment",
	"reply",
	"relapse",
	"reason",
}

// bareVerbs are parameterless menu tokens.
var bareVerbs = map[string]bool{
	"set_nick":         true,
	"set_bio":          true,
	"set_emoji":        true,
	"confess":          true,
	"admin_review":     true,
	"admin_broadcast":  true,
	"admin_newbutton":  true,
	"admin_newchannel": true,
}

// ParseToken decodes a callback token into an Action. Verbs that carry
// two parameters (view_com, reason) split the tail on its last
// underscore; record identifiers never contain one.
func ParseToken(data string) (Action, bool) {
	if bareVerbs[data] {
		return Action{Verb: data}, true
	}
	for _, v := range paramVerbs {
		if !strings.HasPrefix(data, v+"_") {
			continue
		}
		tail := data[len(v)+1:]
		if tail == "" {
			return Action{}, false
		}
		switch v {
		case "view_com", "reason":
			i := strings.LastIndex(tail, "_")
			if i <= 0 || i == len(tail)-1 {
				return Action{}, false
			}
			return Action{Verb: v, Args: []string{tail[:i], tail[i+1:]}}, true
		default:
			return Action{Verb: v, Args: []string{tail}}, true
		}
	}
	return Action{}, false
}
