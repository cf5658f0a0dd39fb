package classification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
	"campaign_sync/pkg/logger"

	"golang.org/x/net/html"
)

// =============================================================================
// ReplyService - dedup and classify inbound campaign replies
// =============================================================================

type ReplyService struct {
	provider   out.CampaignProvider
	campaigns  out.CampaignRepository
	classified out.ClassifiedEmailRepository
	classifier out.ReplyClassifier
	now        func() time.Time
}

func NewReplyService(
	provider out.CampaignProvider,
	campaigns out.CampaignRepository,
	classified out.ClassifiedEmailRepository,
	classifier out.ReplyClassifier,
) *ReplyService {
	return &ReplyService{
		provider:   provider,
		campaigns:  campaigns,
		classified: classified,
		classifier: classifier,
		now:        time.Now,
	}
}

type ReplyResult struct {
	Fetched    int
	Duplicates int
	Classified int
	Failed     int
}

// ClassifyReplies fetches the inbox replies of every local campaign and
// classifies the ones not seen before.
func (s *ReplyService) ClassifyReplies(ctx context.Context) (*ReplyResult, error) {
	result := &ReplyResult{}

	campaigns, err := s.campaigns.List(ctx)
	if err != nil {
		return result, err
	}
	if len(campaigns) == 0 {
		return result, nil
	}

	localIDs := make(map[int64]string, len(campaigns))
	providerIDs := make([]int64, 0, len(campaigns))
	for _, c := range campaigns {
		localIDs[c.CampaignID] = c.ID
		providerIDs = append(providerIDs, c.CampaignID)
	}

	replies, err := s.provider.FetchInboxReplies(ctx, providerIDs)
	if err != nil {
		if len(replies) == 0 {
			return result, fmt.Errorf("fetch inbox replies: %w", err)
		}
		logger.Warn("[ReplyService.ClassifyReplies] partial inbox (%d replies): %v", len(replies), err)
	}
	result.Fetched = len(replies)

	for _, r := range replies {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		localID, ok := localIDs[r.CampaignID]
		if !ok {
			continue
		}

		outcome, err := s.classifyOne(ctx, localID, r)
		if err != nil {
			logger.WithError(err).Error("[ReplyService.ClassifyReplies] reply %q not stored", r.MessageID)
			result.Failed++
			continue
		}
		switch outcome {
		case outcomeDuplicate:
			result.Duplicates++
		case outcomeFailed:
			result.Failed++
		case outcomeClassified:
			result.Classified++
		}
	}

	logger.Info("[ReplyService.ClassifyReplies] fetched=%d duplicates=%d classified=%d failed=%d",
		result.Fetched, result.Duplicates, result.Classified, result.Failed)
	return result, nil
}

type outcome int

const (
	outcomeDuplicate outcome = iota
	outcomeClassified
	outcomeFailed
)

func (s *ReplyService) classifyOne(ctx context.Context, campaignID string, r *domain.InboxReply) (outcome, error) {
	// 1. Dedup by message id
	if r.MessageID != "" {
		exists, err := s.classified.ExistsByMessageID(ctx, r.MessageID)
		if err != nil {
			return outcomeFailed, err
		}
		if exists {
			return outcomeDuplicate, nil
		}
	}

	// 2. Dedup by normalized content
	text := HTMLToText(r.Body)
	hash := replyHash(campaignID, r, text)
	exists, err := s.classified.ExistsByContentHash(ctx, hash)
	if err != nil {
		return outcomeFailed, err
	}
	if exists {
		return outcomeDuplicate, nil
	}

	// 3. Classify
	record := &domain.ClassifiedEmail{
		MessageID:    r.MessageID,
		ContentHash:  hash,
		CampaignID:   campaignID,
		LeadEmail:    r.LeadEmail,
		ReceivedAt:   r.ReceivedAt,
		ClassifiedAt: s.now().UTC(),
	}
	if record.MessageID == "" {
		record.MessageID = "hash:" + hash
	}

	result := outcomeClassified
	label, err := s.classifier.ClassifyReply(ctx, r.Subject, text)
	if err != nil {
		record.Category = domain.ClassificationFailed
		record.ErrorMessage = err.Error()
		result = outcomeFailed
	} else {
		record.Category = domain.MatchReplyLabel(label)
	}

	// 4. Upsert by message id
	if err := s.classified.Upsert(ctx, record); err != nil {
		return outcomeFailed, err
	}
	return result, nil
}

// =============================================================================
// Normalization
// =============================================================================

// HTMLToText drops tags, script and style content and returns the visible
// text. Plain text passes through unchanged.
func HTMLToText(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var sb strings.Builder
	skip := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br", "p", "div", "li", "tr":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr":
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(tokenizer.Text())
			}
		}
	}
}

// NormalizeText lower-cases text and collapses whitespace runs.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// replyHash keys a reply by its normalized body. Replies with no text would
// all share one hash, so those are keyed by who sent them and when instead.
func replyHash(campaignID string, r *domain.InboxReply, text string) string {
	if NormalizeText(text) != "" {
		return ContentHash(text)
	}
	return ContentHash(fmt.Sprintf("empty-reply %s %s %s %s",
		r.MessageID, campaignID, r.LeadEmail, r.ReceivedAt.UTC().Format(time.RFC3339)))
}

// ContentHash is the hex SHA-256 of the normalized text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}
