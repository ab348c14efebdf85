package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
	"github.com/mmeshcher/agroloan-system/internal/repository"
)

// Срок совместных займов, создаваемых из группы.
const jointLoanTermMonths = 12

// CreateJointGroup создаёт группу совместного займа. Создатель сразу становится
// участником. Целевое число участников — сколько долей размера порога
// понадобится, чтобы покрыть запрошенную сумму: ceil(requested / threshold).
func (s *Service) CreateJointGroup(ctx context.Context, farmerID, thresholdCents, requestedCents int64, purpose string) (*model.JointLoanGroup, error) {
	if thresholdCents <= 0 {
		return nil, fmt.Errorf("%w: threshold must be positive", ErrValidation)
	}
	if requestedCents <= 0 {
		return nil, fmt.Errorf("%w: requested amount must be positive", ErrValidation)
	}

	targetCount := int((requestedCents + thresholdCents - 1) / thresholdCents)

	group := &model.JointLoanGroup{
		CreatorID:      farmerID,
		ThresholdCents: thresholdCents,
		TargetCount:    targetCount,
		Status:         model.GroupStatusMatching,
	}
	creator := &model.JointLoanMember{
		FarmerID:    farmerID,
		AmountCents: requestedCents,
		Purpose:     purpose,
		Status:      model.MemberPending,
	}

	id, err := s.repo.CreateGroup(ctx, group, creator)
	if err != nil {
		return nil, err
	}
	group.ID = id

	s.audit(ctx, model.ActorFarmer, farmerID, "create_joint_group", fmt.Sprintf("group:%d", id))

	return group, nil
}

// JoinJointGroup присоединяет фермера к открытой группе. Когда суммарный запрос
// участников достигает порога, группа переходит в MATCHED.
func (s *Service) JoinJointGroup(ctx context.Context, groupID, farmerID, amountCents int64, purpose string) (bool, error) {
	if amountCents <= 0 {
		return false, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	matched, err := s.repo.JoinGroup(ctx, groupID, farmerID, amountCents, purpose)
	if err != nil {
		return false, err
	}

	if matched {
		s.logger.Info("joint group matched", zap.Int64("group", groupID))
	}

	s.audit(ctx, model.ActorFarmer, farmerID, "join_joint_group", fmt.Sprintf("group:%d", groupID))

	return matched, nil
}

// QuitJointGroup выводит фермера из группы, пока она в подборе.
// Когда в группе остаётся один создатель, группа отменяется.
func (s *Service) QuitJointGroup(ctx context.Context, groupID, farmerID int64) (bool, error) {
	cancelled, err := s.repo.QuitGroup(ctx, groupID, farmerID)
	if err != nil {
		return false, err
	}

	if cancelled {
		s.logger.Info("joint group cancelled", zap.Int64("group", groupID))
	}

	s.audit(ctx, model.ActorFarmer, farmerID, "quit_joint_group", fmt.Sprintf("group:%d", groupID))

	return cancelled, nil
}

// ConfirmJointGroup подтверждает набранную группу: по каждому участнику
// создаётся отдельная заявка на финансирование с привязкой к группе,
// после чего группа переходит в APPLIED. Подтвердить группу может только создатель.
func (s *Service) ConfirmJointGroup(ctx context.Context, farmerID, groupID int64) ([]model.FinancingApplication, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatorID != farmerID {
		return nil, fmt.Errorf("%w: only the group creator may confirm group %d", ErrNotGroupCreator, groupID)
	}
	if group.Status != model.GroupStatusMatched {
		return nil, fmt.Errorf("%w: group %d is in status %s", ErrGroupNotMatched, groupID, group.Status)
	}

	members, err := s.repo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	apps := make([]model.FinancingApplication, 0, len(members))
	for _, m := range members {
		if m.Status != model.MemberPending {
			continue
		}

		app := model.FinancingApplication{
			FarmerID:     m.FarmerID,
			JointGroupID: &groupID,
			AmountCents:  m.AmountCents,
			TermMonths:   jointLoanTermMonths,
			Purpose:      m.Purpose,
			Status:       model.ApplicationStatusApplied,
		}
		id, err := s.repo.CreateApplication(ctx, &app)
		if err != nil {
			return nil, fmt.Errorf("create application for member %d: %w", m.FarmerID, err)
		}
		app.ID = id

		if err := s.repo.AppendTimeline(ctx, &model.TimelineEntry{
			ApplicationID: id,
			ActorType:     model.ActorFarmer,
			ActorID:       m.FarmerID,
			Action:        "submit",
			Note:          fmt.Sprintf("joint loan group %d", groupID),
		}); err != nil {
			s.logger.Warn("append timeline failed", zap.Int64("application", id), zap.Error(err))
		}

		if err := s.repo.UpdateMemberStatus(ctx, m.ID, model.MemberConfirmed); err != nil {
			return nil, err
		}

		apps = append(apps, app)
	}

	if err := s.repo.UpdateGroupStatus(ctx, groupID, model.GroupStatusMatched, model.GroupStatusApplied); err != nil {
		return nil, err
	}

	s.audit(ctx, model.ActorFarmer, farmerID, "confirm_joint_group", fmt.Sprintf("group:%d applications:%d", groupID, len(apps)))

	return apps, nil
}

// GetJointGroup возвращает группу и её участников.
func (s *Service) GetJointGroup(ctx context.Context, groupID int64) (*model.JointLoanGroup, []model.JointLoanMember, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.repo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	return group, members, nil
}

// FindJointGroupCandidates подбирает фермеру открытые группы, остаточная
// потребность которых сопоставима с его запросом: от половины до двукратной суммы.
func (s *Service) FindJointGroupCandidates(ctx context.Context, farmerID, amountCents int64) ([]repository.GroupCandidate, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	groups, err := s.repo.ListOpenGroupsExcluding(ctx, farmerID)
	if err != nil {
		return nil, err
	}

	var res []repository.GroupCandidate
	for _, g := range groups {
		remaining := g.Group.ThresholdCents - g.JoinedCents
		if remaining <= 0 {
			continue
		}
		if remaining >= amountCents/2 && remaining <= amountCents*2 {
			res = append(res, g)
		}
	}
	return res, nil
}
