package repo

import (
	"context"
	"errors"
	"time"

	"github.com/lnkr-app/lnkr/model"
	"github.com/lnkr-app/lnkr/shared/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLRepo is the gorm-backed repository.
type SQLRepo struct {
	DB *db.PostgresDB
}

func NewSQLRepo(pg *db.PostgresDB) *SQLRepo {
	return &SQLRepo{DB: pg}
}

func (r *SQLRepo) Migrate() error {
	return r.DB.Migrate(
		&model.User{},
		&model.Link{},
		&model.Domain{},
		&model.Host{},
		&model.Visit{},
		&model.IP{},
	)
}

func (r *SQLRepo) linkQuery(ctx context.Context, filter LinkFilter) *gorm.DB {
	q := r.DB.GetDB().WithContext(ctx).Model(&model.Link{})
	if filter.Address != "" {
		q = q.Where("address = ?", filter.Address)
	}
	if filter.Target != "" {
		q = q.Where("target = ?", filter.Target)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if !filter.AnyDomain {
		if filter.DomainID != nil {
			q = q.Where("domain_id = ?", *filter.DomainID)
		} else {
			q = q.Where("domain_id IS NULL")
		}
	}
	return q
}

func (r *SQLRepo) FindLink(ctx context.Context, filter LinkFilter) (*model.Link, error) {
	var link model.Link
	err := r.linkQuery(ctx, filter).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *SQLRepo) CreateLink(ctx context.Context, link *model.Link) error {
	err := r.DB.GetDB().WithContext(ctx).Create(link).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateAddress
	}
	return err
}

func (r *SQLRepo) IncrementVisitCount(ctx context.Context, linkID uint) error {
	return r.DB.GetDB().WithContext(ctx).
		Model(&model.Link{}).
		Where("id = ?", linkID).
		UpdateColumn("visit_count", gorm.Expr("visit_count + 1")).Error
}

func (r *SQLRepo) DeleteLink(ctx context.Context, address string, domainID *uint, userID uint) (bool, error) {
	q := r.DB.GetDB().WithContext(ctx).
		Where("address = ? AND user_id = ?", address, userID)
	if domainID != nil {
		q = q.Where("domain_id = ?", *domainID)
	} else {
		q = q.Where("domain_id IS NULL")
	}
	res := q.Delete(&model.Link{})
	return res.RowsAffected > 0, res.Error
}

func (r *SQLRepo) ListUserLinks(ctx context.Context, userID uint, limit, offset int) ([]model.Link, int64, error) {
	var total int64
	if err := r.DB.GetDB().WithContext(ctx).
		Model(&model.Link{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var links []model.Link
	err := r.DB.GetDB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&links).Error
	return links, total, err
}

func (r *SQLRepo) CountUserLinksSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.DB.GetDB().WithContext(ctx).
		Model(&model.Link{}).
		Where("user_id = ? AND created_at > ?", userID, since).
		Count(&count).Error
	return count, err
}

func (r *SQLRepo) BanLink(ctx context.Context, opts BanOptions) error {
	return r.DB.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Link{}).
			Where("address = ? AND domain_id IS NULL", opts.Address).
			Update("banned", true).Error; err != nil {
			return err
		}

		if opts.HostIP != "" {
			host := model.Host{Address: opts.HostIP, Banned: true}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"banned": true}),
			}).Create(&host).Error; err != nil {
				return err
			}
		}

		if opts.Domain != "" {
			domain := model.Domain{Address: opts.Domain, Banned: true}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"banned": true}),
			}).Create(&domain).Error; err != nil {
				return err
			}
		}

		if opts.UserID != nil {
			if err := tx.Model(&model.User{}).
				Where("id = ?", *opts.UserID).
				Update("banned", true).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *SQLRepo) FindDomain(ctx context.Context, address string) (*model.Domain, error) {
	var domain model.Domain
	err := r.DB.GetDB().WithContext(ctx).
		Where("address = ?", address).
		First(&domain).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain, nil
}

func (r *SQLRepo) FindDomainByID(ctx context.Context, id uint) (*model.Domain, error) {
	var domain model.Domain
	err := r.DB.GetDB().WithContext(ctx).First(&domain, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain, nil
}

func (r *SQLRepo) FindHost(ctx context.Context, ipAddress string) (*model.Host, error) {
	var host model.Host
	err := r.DB.GetDB().WithContext(ctx).
		Where("address = ?", ipAddress).
		First(&host).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &host, nil
}

func (r *SQLRepo) RecordVisit(ctx context.Context, visit *model.Visit) error {
	return r.DB.GetDB().WithContext(ctx).Create(visit).Error
}

func (r *SQLRepo) FindVisits(ctx context.Context, linkID uint, since time.Time) ([]model.Visit, error) {
	var visits []model.Visit
	q := r.DB.GetDB().WithContext(ctx).Where("link_id = ?", linkID)
	if !since.IsZero() {
		q = q.Where("created_at > ?", since)
	}
	err := q.Order("created_at ASC").Find(&visits).Error
	return visits, err
}

func (r *SQLRepo) FindUserByAPIKey(ctx context.Context, key string) (*model.User, error) {
	var user model.User
	err := r.DB.GetDB().WithContext(ctx).
		Where("api_key = ?", key).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *SQLRepo) AddUserCooldown(ctx context.Context, userID uint, at time.Time) (int, error) {
	err := r.DB.GetDB().WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"cooldown_count": gorm.Expr("cooldown_count + 1"),
			"last_cooldown":  at,
		}).Error
	if err != nil {
		return 0, err
	}

	var user model.User
	if err := r.DB.GetDB().WithContext(ctx).First(&user, userID).Error; err != nil {
		return 0, err
	}
	return user.CooldownCount, nil
}

func (r *SQLRepo) BanUser(ctx context.Context, userID uint) error {
	return r.DB.GetDB().WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("banned", true).Error
}

func (r *SQLRepo) RecordIP(ctx context.Context, address string) error {
	return r.DB.GetDB().WithContext(ctx).Create(&model.IP{Address: address}).Error
}

func (r *SQLRepo) HasRecentIP(ctx context.Context, address string, since time.Time) (bool, error) {
	var count int64
	err := r.DB.GetDB().WithContext(ctx).
		Model(&model.IP{}).
		Where("address = ? AND created_at > ?", address, since).
		Count(&count).Error
	return count > 0, err
}
