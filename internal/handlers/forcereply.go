package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
)

// ForceReplyPayload is the decoded voice_command payload for commandType
// "force_reply".
type ForceReplyPayload struct {
	Character string `json:"character"`
}

// HandleForceReply resolves which character should speak next and how. For a
// [ReplyPolicyStub] character the Outcome carries the canned line directly in
// Result["stubText"] so the orchestrator can hand it straight to the voice
// pipeline's synthesis stage without a generation round trip. For
// [ReplyPolicyAI] the Outcome only names the character and voice; the
// orchestrator is responsible for driving the LLM/Realtime adapter itself.
func HandleForceReply(payload ForceReplyPayload, now time.Time) Outcome {
	character := Character(payload.Character)
	if !character.IsValid() {
		return rejected("unknown character: "+payload.Character, now)
	}

	profile, ok := DefaultCharacterProfiles()[character]
	if !ok {
		return rejected("no profile for character: "+payload.Character, now)
	}

	result := map[string]any{
		"character":   string(character),
		"voiceId":     profile.VoiceID,
		"replyPolicy": string(profile.ReplyPolicy),
	}
	if profile.ReplyPolicy == ReplyPolicyStub {
		result["stubText"] = profile.Templates["force_reply"]
	}

	return Outcome{
		Accepted: true,
		Events: []scenario.Event{
			{Ts: now, Type: "reply.forced", Data: map[string]any{"character": string(character)}},
		},
		Result: result,
	}
}
