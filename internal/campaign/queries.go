package campaign

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

// Summary is the public view of a campaign.
type Summary struct {
	Address      string          `json:"address"`
	Registry     string          `json:"registry"`
	Creator      string          `json:"creator"`
	Status       ledger.Status   `json:"status"`
	PaidOut      bool            `json:"paid_out"`
	Goal         sdkmath.Uint    `json:"goal"`
	Total        sdkmath.Uint    `json:"total"`
	Deadline     uint64          `json:"deadline"`
	Deadman      uint64          `json:"deadman"`
	Title        string          `json:"title"`
	Subtitle     string          `json:"subtitle"`
	Description  string          `json:"description"`
	CoverImage   string          `json:"cover_image,omitempty"`
	Categories   []uint16        `json:"categories"`
	SpamCount    uint32          `json:"spam_count"`
	FunderCount  uint32          `json:"funder_count"`
	CommentCount uint32          `json:"comment_count"`
	Variant      charter.Variant `json:"variant"`
	Asset        string          `json:"asset"`
	RewardToken  string          `json:"reward_token,omitempty"`
}

// ViewerSummary adds what only an authenticated viewer may see.
type ViewerSummary struct {
	Summary
	Viewer         string        `json:"viewer"`
	PledgedMessage *string       `json:"pledged_message,omitempty"`
	FundedMessage  *string       `json:"funded_message,omitempty"`
	Contribution   *sdkmath.Uint `json:"contribution,omitempty"`
	Anonymous      bool          `json:"anonymous"`
	RewardMessages []string      `json:"reward_messages,omitempty"`
	RewardClaimed  string        `json:"reward_claimed,omitempty"`
}

// CommentView is one comment in a page.
type CommentView struct {
	Idx    uint32 `json:"idx"`
	Author string `json:"author"`
	Text   string `json:"text"`
	Height uint64 `json:"height"`
}

// ContributorView is one funder in a page; Address is empty for anonymous funders.
type ContributorView struct {
	Idx       uint32       `json:"idx"`
	Address   string       `json:"address,omitempty"`
	Anonymous bool         `json:"anonymous"`
	Amount    sdkmath.Uint `json:"amount"`
}

func (s *Service) loadForQuery(operation string, store *ledger.Store, address string) (ledger.Campaign, error) {
	campaign, err := store.LoadCampaign(address)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Campaign{}, newServiceError(operation, "campaign_not_found", ErrCampaignNotFound)
	}
	if err != nil {
		s.logError(operation, "campaign_load_failed", err)
		return ledger.Campaign{}, newServiceError(operation, "campaign_load_failed", err)
	}
	return campaign, nil
}

func summarize(campaign ledger.Campaign, height uint64) Summary {
	categories := campaign.Categories
	if categories == nil {
		categories = []uint16{}
	}
	return Summary{
		Address:      campaign.Address,
		Registry:     campaign.Registry,
		Creator:      campaign.Creator,
		Status:       EffectiveStatus(campaign, height),
		PaidOut:      campaign.PaidOut,
		Goal:         campaign.Goal,
		Total:        campaign.Total,
		Deadline:     campaign.Deadline,
		Deadman:      campaign.Deadman,
		Title:        campaign.Title,
		Subtitle:     campaign.Subtitle,
		Description:  campaign.Description,
		CoverImage:   campaign.CoverImage,
		Categories:   categories,
		SpamCount:    campaign.SpamCount,
		FunderCount:  campaign.FunderCount,
		CommentCount: campaign.CommentCount,
		Variant:      campaign.Variant,
		Asset:        campaign.Asset,
		RewardToken:  campaign.RewardToken,
	}
}

// Status returns the public summary with lazy expiry applied but not persisted.
func (s *Service) Status(store *ledger.Store, address string, height uint64) (Summary, error) {
	campaign, err := s.loadForQuery(opQueryStatus, store, address)
	if err != nil {
		return Summary{}, err
	}
	return summarize(campaign, height), nil
}

// StatusAuth authenticates viewer with a viewing key before returning the viewer summary.
func (s *Service) StatusAuth(store *ledger.Store, address, viewer, key string, height uint64) (ViewerSummary, error) {
	stored, err := store.LoadViewingKey(address, viewer)
	if errors.Is(err, ledger.ErrNotFound) {
		s.viewingKeys.Matches("", key)
		return ViewerSummary{}, newServiceError(opQueryStatus, "viewing_key_mismatch", ErrUnauthorized)
	}
	if err != nil {
		return ViewerSummary{}, newServiceError(opQueryStatus, "viewing_key_load_failed", err)
	}
	if !s.viewingKeys.Matches(stored.KeyHash, key) {
		return ViewerSummary{}, newServiceError(opQueryStatus, "viewing_key_mismatch", ErrUnauthorized)
	}
	return s.StatusForViewer(store, address, viewer, height)
}

// StatusForViewer returns the viewer summary of an identity that was already
// authenticated, by viewing key or by permit.
func (s *Service) StatusForViewer(store *ledger.Store, address, viewer string, height uint64) (ViewerSummary, error) {
	campaign, err := s.loadForQuery(opQueryStatus, store, address)
	if err != nil {
		return ViewerSummary{}, err
	}
	view := ViewerSummary{Summary: summarize(campaign, height), Viewer: viewer}
	status := view.Status

	if viewer == campaign.Creator {
		pledged, funded := campaign.PledgedMessage, campaign.FundedMessage
		view.PledgedMessage = &pledged
		view.FundedMessage = &funded
		return view, nil
	}

	funder, err := store.LoadFunder(campaign.Address, viewer)
	if errors.Is(err, ledger.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return ViewerSummary{}, newServiceError(opQueryStatus, "funder_load_failed", err)
	}
	contribution := funder.Amount
	view.Contribution = &contribution
	view.Anonymous = funder.Anonymous
	view.RewardClaimed = funder.RewardClaimed
	if contribution.IsZero() {
		return view, nil
	}
	if status != ledger.StatusExpired {
		pledged := campaign.PledgedMessage
		view.PledgedMessage = &pledged
	}
	if status == ledger.StatusSuccessful {
		funded := campaign.FundedMessage
		view.FundedMessage = &funded
	}
	for _, message := range campaign.RewardMessages {
		if contribution.GTE(message.Threshold) {
			view.RewardMessages = append(view.RewardMessages, message.Message)
		}
	}
	return view, nil
}

// Comments returns one page of comments in insertion order.
func (s *Service) Comments(store *ledger.Store, address string, page, pageSize uint32) ([]CommentView, error) {
	if _, err := s.loadForQuery(opQueryComments, store, address); err != nil {
		return nil, err
	}
	comments, err := store.ListComments(address, page, pageSize)
	if err != nil {
		return nil, newServiceError(opQueryComments, "comment_list_failed", err)
	}
	views := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		views = append(views, CommentView{
			Idx:    comment.Idx,
			Author: comment.Author,
			Text:   comment.Text,
			Height: comment.Height,
		})
	}
	return views, nil
}

// Contributors returns one page of funders in insertion order with anonymous identities
// suppressed.
func (s *Service) Contributors(store *ledger.Store, address string, page, pageSize uint32) ([]ContributorView, error) {
	if _, err := s.loadForQuery(opQueryContributors, store, address); err != nil {
		return nil, err
	}
	funders, err := store.ListFunders(address, page, pageSize)
	if err != nil {
		return nil, newServiceError(opQueryContributors, "funder_list_failed", err)
	}
	views := make([]ContributorView, 0, len(funders))
	for _, funder := range funders {
		view := ContributorView{Idx: funder.Idx, Anonymous: funder.Anonymous, Amount: funder.Amount}
		if !funder.Anonymous {
			view.Address = funder.Address
		}
		views = append(views, view)
	}
	return views, nil
}
