package campaign

import (
	"strings"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

func (s *Service) comment(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign, command Comment) (hostenv.Result, error) {
	if reason := commentRefusal(*campaign); reason != "" {
		return hostenv.Failure(reason), nil
	}
	if strings.TrimSpace(command.Text) == "" {
		return hostenv.Failure("Comment cannot be empty"), nil
	}
	entry := ledger.Comment{
		CampaignAddress: campaign.Address,
		Idx:             campaign.CommentCount,
		Author:          env.Sender,
		Text:            command.Text,
		Height:          env.Height,
	}
	if err := store.AppendComment(&entry); err != nil {
		s.logError(opComment, "comment_append_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opComment, "comment_append_failed", err)
	}
	campaign.CommentCount++
	if err := s.save(opComment, store, campaign); err != nil {
		return hostenv.Result{}, err
	}
	return hostenv.Success("Comment added").WithData("idx", entry.Idx), nil
}

func (s *Service) flagSpam(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign, command FlagSpam) (hostenv.Result, error) {
	flag, err := store.LoadSpamFlag(campaign.Address, env.Sender)
	if err != nil {
		s.logError(opFlagSpam, "flag_load_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opFlagSpam, "flag_load_failed", err)
	}
	if flag.Flagged == command.Flag {
		return hostenv.Success("Spam flag unchanged").WithData("spam_count", campaign.SpamCount), nil
	}

	flag.Flagged = command.Flag
	if command.Flag {
		campaign.SpamCount++
	} else if campaign.SpamCount > 0 {
		campaign.SpamCount--
	}
	if err := store.SaveSpamFlag(&flag); err != nil {
		s.logError(opFlagSpam, "flag_save_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opFlagSpam, "flag_save_failed", err)
	}
	if err := s.save(opFlagSpam, store, campaign); err != nil {
		return hostenv.Result{}, err
	}
	message := "Flagged as spam"
	if !command.Flag {
		message = "Spam flag removed"
	}
	return hostenv.Success(message).WithData("spam_count", campaign.SpamCount), nil
}
