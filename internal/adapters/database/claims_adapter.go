package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/lib/pq"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
	"github.com/junohealth/marketexplorer/internal/infrastructure/clients/postgres"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

const (
	tableProviders = "claims_providers"
	tableSites     = "claims_sites_of_service"
	tableVisits    = "claims_visits"
)

const (
	totalSitesExpr = "(SELECT COUNT(*) FROM " + tableSites + ")"
	groupSitesExpr = "(SELECT COUNT(DISTINCT gv.site_id) FROM " + tableVisits + " gv JOIN " + tableProviders +
		" gp ON gp.id = gv.provider_id WHERE gp.provider_group = p.provider_group)"
)

// ClaimsAdapter reads explorer data straight from the claims tables
type ClaimsAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewClaimsAdapter creates a new claims adapter
func NewClaimsAdapter(client *postgres.Client) *ClaimsAdapter {
	return &ClaimsAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var _ providers.ClaimsSource = (*ClaimsAdapter)(nil)

// ListEntities returns one page of sites, providers or groups matching filters
func (a *ClaimsAdapter) ListEntities(ctx context.Context, kind entities.ViewMode, filters entities.FilterSet, page entities.Pagination) (*entities.EntityPage, error) {
	f := filters.Normalize()
	switch kind {
	case entities.ViewModeSites:
		return a.sitePage(ctx, a.siteRollup(f), page)
	case entities.ViewModeProviders:
		ds := a.db.From(goqu.T(tableProviders).As("p")).Where(providerConditions(f)...)
		return a.providerPage(ctx, ds, providerColumns(goqu.COALESCE(goqu.I("p.total_visits"), 0)), page)
	case entities.ViewModeGroups:
		return a.groupPage(ctx, a.groupRollup(f), page)
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("unknown view mode %q", kind))
}

// SiteScoped returns the kind entities linked to one site. Provider visit totals are the
// provider's visits at that site.
func (a *ClaimsAdapter) SiteScoped(ctx context.Context, kind entities.ViewMode, siteID string, page entities.Pagination) (*entities.EntityPage, error) {
	switch kind {
	case entities.ViewModeSites:
		return a.sitePage(ctx, a.siteRollup(entities.FilterSet{}).Where(goqu.I("s.id").Eq(siteID)), page)
	case entities.ViewModeProviders:
		ds := a.db.From(goqu.T(tableProviders).As("p")).
			Join(goqu.T(tableVisits).As("v"), goqu.On(goqu.I("v.provider_id").Eq(goqu.I("p.id")))).
			Where(goqu.I("v.site_id").Eq(siteID)).
			GroupBy(goqu.I("p.id"))
		return a.providerPage(ctx, ds, providerColumns(goqu.COALESCE(goqu.SUM(goqu.I("v.visits")), 0)), page)
	case entities.ViewModeGroups:
		ds := a.groupRollup(entities.FilterSet{}).
			Where(goqu.I("p.id").In(a.db.From(tableVisits).Select("provider_id").Where(goqu.C("site_id").Eq(siteID))))
		return a.groupPage(ctx, ds, page)
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("unknown view mode %q", kind))
}

// MapMarkers returns every geocoded site matching filters
func (a *ClaimsAdapter) MapMarkers(ctx context.Context, filters entities.FilterSet) (*entities.MarkerSet, error) {
	f := filters.Normalize()
	f.HasCoordinates = entities.Bool(true)

	sites, err := a.querySites(ctx, a.siteRollup(f).Order(goqu.I("total_visits").Desc()))
	if err != nil {
		return nil, err
	}

	set := &entities.MarkerSet{Markers: make([]entities.MapMarker, 0, len(sites))}
	for _, s := range sites {
		set.Markers = append(set.Markers, s.Marker())
	}
	set.TotalCount = len(set.Markers)
	set.Bounds = set.FitBounds()
	return set, nil
}

// SitesFor returns the sites a provider or provider group has visits at
func (a *ClaimsAdapter) SitesFor(ctx context.Context, kind providers.RelationKind, id string) ([]entities.Site, error) {
	var siteIDs *goqu.SelectDataset
	switch kind {
	case providers.RelationProvider:
		siteIDs = a.db.From(tableVisits).Select("site_id").Where(goqu.C("provider_id").Eq(id))
	case providers.RelationProviderGroup:
		siteIDs = a.db.From(goqu.T(tableVisits).As("v")).
			Join(goqu.T(tableProviders).As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("v.provider_id")))).
			Select(goqu.I("v.site_id")).
			Where(goqu.I("p.provider_group").Eq(id))
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown relation %q", kind))
	}

	return a.querySites(ctx, a.siteRollup(entities.FilterSet{}).
		Where(goqu.I("s.id").In(siteIDs)).
		Order(goqu.I("total_visits").Desc()))
}

// FilterOptions returns the distinct values for the filter dropdowns
func (a *ClaimsAdapter) FilterOptions(ctx context.Context) (*entities.FilterOptions, error) {
	opts := &entities.FilterOptions{}
	targets := []struct {
		table, column string
		dest          *[]string
	}{
		{tableProviders, "geomarket", &opts.Geomarkets},
		{tableSites, "city", &opts.Cities},
		{tableSites, "county", &opts.Counties},
		{tableProviders, "specialty", &opts.Specialties},
		{tableProviders, "provider_group", &opts.ProviderGroups},
		{tableSites, "site_type", &opts.SiteTypes},
		{tableProviders, "service_line", &opts.ServiceLines},
	}
	for _, t := range targets {
		values, err := a.distinct(ctx, t.table, t.column)
		if err != nil {
			return nil, err
		}
		*t.dest = values
	}
	return opts, nil
}

func (a *ClaimsAdapter) distinct(ctx context.Context, table, column string) ([]string, error) {
	query, args, err := a.db.From(table).
		SelectDistinct(goqu.C(column)).
		Where(goqu.C(column).IsNotNull()).
		Order(goqu.C(column).Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build filter options query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDataUnavailableError(fmt.Sprintf("failed to load %s options", column), err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, apperrors.NewInvalidResponseError("failed to scan filter option", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDataUnavailableError("error iterating filter options", err)
	}
	return values, nil
}

// siteRollup aggregates visits per site and applies the site filters
func (a *ClaimsAdapter) siteRollup(f entities.FilterSet) *goqu.SelectDataset {
	return a.db.From(goqu.T(tableSites).As("s")).
		LeftJoin(goqu.T(tableVisits).As("v"), goqu.On(goqu.I("v.site_id").Eq(goqu.I("s.id")))).
		Select(
			goqu.I("s.id"), goqu.I("s.name"), goqu.I("s.city"), goqu.I("s.county"),
			goqu.I("s.site_type"), goqu.I("s.geomarket"), goqu.I("s.latitude"), goqu.I("s.longitude"),
			goqu.COALESCE(goqu.SUM(goqu.I("v.visits")), 0).As("total_visits"),
			goqu.COUNT(goqu.DISTINCT(goqu.I("v.provider_id"))).As("provider_count"),
		).
		Where(siteConditions(f)...).
		GroupBy(goqu.I("s.id")).
		Having(siteAggregates(f)...)
}

func (a *ClaimsAdapter) sitePage(ctx context.Context, rollup *goqu.SelectDataset, page entities.Pagination) (*entities.EntityPage, error) {
	total, err := a.count(ctx, a.db.From(rollup.As("t")))
	if err != nil {
		return nil, err
	}

	sites, err := a.querySites(ctx, rollup.
		Order(goqu.I("total_visits").Desc(), goqu.I("s.name").Asc()).
		Limit(uint(page.PerPage)).
		Offset(uint(page.Offset())))
	if err != nil {
		return nil, err
	}

	stats, err := a.statistics(ctx, a.db.From(goqu.T(tableVisits).As("v")).
		Select(
			goqu.COALESCE(goqu.SUM(goqu.I("v.visits")), 0),
			goqu.COUNT(goqu.DISTINCT(goqu.I("v.provider_id"))),
			goqu.COUNT(goqu.DISTINCT(goqu.I("v.site_id"))),
		).
		Where(goqu.I("v.site_id").In(a.db.From(rollup.As("t")).Select(goqu.I("t.id")))))
	if err != nil {
		return nil, err
	}

	return &entities.EntityPage{
		Kind:       entities.ViewModeSites,
		Sites:      sites,
		Meta:       entities.NewPaginationMeta(page, total),
		Statistics: stats,
	}, nil
}

func (a *ClaimsAdapter) querySites(ctx context.Context, ds *goqu.SelectDataset) ([]entities.Site, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build sites query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDataUnavailableError("failed to query sites", err)
	}
	defer rows.Close()

	sites := []entities.Site{}
	for rows.Next() {
		var s entities.Site
		var city, county, siteType, geomarket sql.NullString
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.Name, &city, &county, &siteType, &geomarket, &lat, &lon, &s.TotalVisits, &s.ProviderCount); err != nil {
			return nil, apperrors.NewInvalidResponseError("failed to scan site", err)
		}
		s.City, s.County, s.SiteType, s.Geomarket = city.String, county.String, siteType.String, geomarket.String
		s.Latitude, s.Longitude = nullFloat(lat), nullFloat(lon)
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDataUnavailableError("error iterating sites", err)
	}
	return sites, nil
}

func providerColumns(visits exp.SQLFunctionExpression) []interface{} {
	return []interface{}{
		goqu.I("p.id"), goqu.I("p.npi"), goqu.I("p.name"), goqu.I("p.specialty"),
		goqu.I("p.provider_group"), goqu.I("p.geomarket"), goqu.I("p.top_sos_id"), goqu.I("p.top_sos_name"),
		goqu.I("p.top_payer"), goqu.I("p.top_payer_percent"), goqu.I("p.top_referring_org"),
		visits.As("total_visits"),
	}
}

func (a *ClaimsAdapter) providerPage(ctx context.Context, ds *goqu.SelectDataset, columns []interface{}, page entities.Pagination) (*entities.EntityPage, error) {
	total, err := a.count(ctx, a.db.From(ds.Select(goqu.I("p.id")).As("t")))
	if err != nil {
		return nil, err
	}

	query, args, err := ds.Select(columns...).
		Order(goqu.I("total_visits").Desc(), goqu.I("p.name").Asc()).
		Limit(uint(page.PerPage)).
		Offset(uint(page.Offset())).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build providers query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDataUnavailableError("failed to query providers", err)
	}
	defer rows.Close()

	list := []entities.Provider{}
	for rows.Next() {
		var p entities.Provider
		var npi, specialty, group, geomarket, topSiteID, topSiteName, topPayer, topReferrer sql.NullString
		var topPayerPct sql.NullFloat64
		if err := rows.Scan(&p.ID, &npi, &p.Name, &specialty, &group, &geomarket, &topSiteID, &topSiteName,
			&topPayer, &topPayerPct, &topReferrer, &p.TotalVisits); err != nil {
			return nil, apperrors.NewInvalidResponseError("failed to scan provider", err)
		}
		p.NPI, p.Specialty, p.ProviderGroup, p.Geomarket = npi.String, specialty.String, group.String, geomarket.String
		p.TopSiteID, p.TopSiteName, p.TopPayer, p.TopReferringOrg = topSiteID.String, topSiteName.String, topPayer.String, topReferrer.String
		p.TopPayerPercent = nullFloat(topPayerPct)
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDataUnavailableError("error iterating providers", err)
	}

	stats, err := a.statistics(ctx, a.db.From(ds.Select(columns...).As("t")).Select(
		goqu.COALESCE(goqu.SUM(goqu.I("t.total_visits")), 0),
		goqu.COUNT(goqu.Star()),
		goqu.L(totalSitesExpr),
	))
	if err != nil {
		return nil, err
	}

	return &entities.EntityPage{
		Kind:       entities.ViewModeProviders,
		Providers:  list,
		Meta:       entities.NewPaginationMeta(page, total),
		Statistics: stats,
	}, nil
}

// groupRollup aggregates providers by group name and applies the group filters
func (a *ClaimsAdapter) groupRollup(f entities.FilterSet) *goqu.SelectDataset {
	return a.db.From(goqu.T(tableProviders).As("p")).
		Select(
			goqu.I("p.provider_group"),
			goqu.COUNT(goqu.I("p.id")).As("provider_count"),
			goqu.COALESCE(goqu.SUM(goqu.I("p.total_visits")), 0).As("total_visits"),
			goqu.L("ARRAY_REMOVE(ARRAY_AGG(DISTINCT p.specialty), NULL)").As("specialties"),
			goqu.L("ARRAY_REMOVE(ARRAY_AGG(DISTINCT p.geomarket), NULL)").As("geomarkets"),
			goqu.L(groupSitesExpr).As("site_count"),
		).
		Where(goqu.I("p.provider_group").IsNotNull()).
		Where(groupConditions(f)...).
		GroupBy(goqu.I("p.provider_group")).
		Having(groupAggregates(f)...)
}

func (a *ClaimsAdapter) groupPage(ctx context.Context, rollup *goqu.SelectDataset, page entities.Pagination) (*entities.EntityPage, error) {
	total, err := a.count(ctx, a.db.From(rollup.As("t")))
	if err != nil {
		return nil, err
	}

	query, args, err := rollup.
		Order(goqu.I("total_visits").Desc(), goqu.I("p.provider_group").Asc()).
		Limit(uint(page.PerPage)).
		Offset(uint(page.Offset())).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build provider groups query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDataUnavailableError("failed to query provider groups", err)
	}
	defer rows.Close()

	groups := []entities.ProviderGroup{}
	for rows.Next() {
		var g entities.ProviderGroup
		if err := rows.Scan(&g.Name, &g.ProviderCount, &g.TotalVisits,
			pq.Array(&g.Specialties), pq.Array(&g.Geomarkets), &g.SiteCount); err != nil {
			return nil, apperrors.NewInvalidResponseError("failed to scan provider group", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDataUnavailableError("error iterating provider groups", err)
	}

	stats, err := a.statistics(ctx, a.db.From(rollup.As("t")).Select(
		goqu.COALESCE(goqu.SUM(goqu.I("t.total_visits")), 0),
		goqu.COALESCE(goqu.SUM(goqu.I("t.provider_count")), 0),
		goqu.L(totalSitesExpr),
	))
	if err != nil {
		return nil, err
	}

	return &entities.EntityPage{
		Kind:       entities.ViewModeGroups,
		Groups:     groups,
		Meta:       entities.NewPaginationMeta(page, total),
		Statistics: stats,
	}, nil
}

func (a *ClaimsAdapter) count(ctx context.Context, ds *goqu.SelectDataset) (int, error) {
	query, args, err := ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var total int
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, apperrors.NewDataUnavailableError("failed to count claims rows", err)
	}
	return total, nil
}

// statistics scans (total visits, total providers, total sites) and derives the averages
func (a *ClaimsAdapter) statistics(ctx context.Context, ds *goqu.SelectDataset) (entities.Statistics, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return entities.Statistics{}, apperrors.NewInternalError("failed to build statistics query", err)
	}

	var s entities.Statistics
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&s.TotalVisits, &s.TotalProviders, &s.TotalSites); err != nil {
		return entities.Statistics{}, apperrors.NewDataUnavailableError("failed to compute statistics", err)
	}
	if s.TotalSites > 0 {
		s.AverageVisitsPerSite = float64(s.TotalVisits) / float64(s.TotalSites)
	}
	if s.TotalProviders > 0 {
		s.AverageVisitsPerProvider = float64(s.TotalVisits) / float64(s.TotalProviders)
	}
	return s, nil
}

func siteConditions(f entities.FilterSet) []exp.Expression {
	var conds []exp.Expression
	if len(f.Geomarket) > 0 {
		conds = append(conds, goqu.I("s.geomarket").In(f.Geomarket))
	}
	if len(f.City) > 0 {
		conds = append(conds, goqu.I("s.city").In(f.City))
	}
	if len(f.County) > 0 {
		conds = append(conds, goqu.I("s.county").In(f.County))
	}
	if b := f.Bounds(); b != nil {
		conds = append(conds,
			goqu.I("s.latitude").Between(goqu.Range(b.South, b.North)),
			goqu.I("s.longitude").Between(goqu.Range(b.West, b.East)),
		)
	}
	if len(f.SiteType) > 0 {
		conds = append(conds, goqu.I("s.site_type").In(f.SiteType))
	}
	if f.HasCoordinates != nil {
		if *f.HasCoordinates {
			conds = append(conds, goqu.I("s.latitude").IsNotNull(), goqu.I("s.longitude").IsNotNull())
		} else {
			conds = append(conds, goqu.Or(goqu.I("s.latitude").IsNull(), goqu.I("s.longitude").IsNull()))
		}
	}
	if f.Search != "" {
		conds = append(conds, goqu.I("s.name").ILike("%"+f.Search+"%"))
	}
	return conds
}

func siteAggregates(f entities.FilterSet) []exp.Expression {
	visits := goqu.COALESCE(goqu.SUM(goqu.I("v.visits")), 0)
	var conds []exp.Expression
	if f.MinSiteVisits != nil {
		conds = append(conds, visits.Gte(*f.MinSiteVisits))
	}
	if f.MinVisits != nil {
		conds = append(conds, visits.Gte(*f.MinVisits))
	}
	if f.MaxVisits != nil {
		conds = append(conds, visits.Lte(*f.MaxVisits))
	}
	if f.MinProviders != nil {
		conds = append(conds, goqu.COUNT(goqu.DISTINCT(goqu.I("v.provider_id"))).Gte(*f.MinProviders))
	}
	conds = appendFlag(conds, "v.has_oncology", f.HasOncology)
	conds = appendFlag(conds, "v.has_surgery", f.HasSurgery)
	conds = appendFlag(conds, "v.has_inpatient", f.HasInpatient)
	return conds
}

func appendFlag(conds []exp.Expression, column string, want *bool) []exp.Expression {
	if want == nil {
		return conds
	}
	agg := goqu.Func("BOOL_OR", goqu.I(column))
	if *want {
		return append(conds, agg.IsTrue())
	}
	return append(conds, agg.IsNotTrue())
}

func providerConditions(f entities.FilterSet) []exp.Expression {
	var conds []exp.Expression
	if len(f.Geomarket) > 0 {
		conds = append(conds, goqu.I("p.geomarket").In(f.Geomarket))
	}
	if len(f.Specialty) > 0 {
		conds = append(conds, goqu.I("p.specialty").In(f.Specialty))
	}
	if len(f.ServiceLine) > 0 {
		conds = append(conds, goqu.I("p.service_line").In(f.ServiceLine))
	}
	if len(f.ProviderGroup) > 0 {
		conds = append(conds, goqu.I("p.provider_group").In(f.ProviderGroup))
	}
	if f.MinProviderVisits != nil {
		conds = append(conds, goqu.I("p.total_visits").Gte(*f.MinProviderVisits))
	}
	if f.MinVisits != nil {
		conds = append(conds, goqu.I("p.total_visits").Gte(*f.MinVisits))
	}
	if f.MaxVisits != nil {
		conds = append(conds, goqu.I("p.total_visits").Lte(*f.MaxVisits))
	}
	if f.Search != "" {
		conds = append(conds, goqu.I("p.name").ILike("%"+f.Search+"%"))
	}
	return conds
}

func groupConditions(f entities.FilterSet) []exp.Expression {
	var conds []exp.Expression
	if len(f.Geomarket) > 0 {
		conds = append(conds, goqu.I("p.geomarket").In(f.Geomarket))
	}
	if len(f.Specialty) > 0 {
		conds = append(conds, goqu.I("p.specialty").In(f.Specialty))
	}
	if len(f.ServiceLine) > 0 {
		conds = append(conds, goqu.I("p.service_line").In(f.ServiceLine))
	}
	if len(f.ProviderGroup) > 0 {
		conds = append(conds, goqu.I("p.provider_group").In(f.ProviderGroup))
	}
	if f.Search != "" {
		conds = append(conds, goqu.I("p.provider_group").ILike("%"+f.Search+"%"))
	}
	return conds
}

func groupAggregates(f entities.FilterSet) []exp.Expression {
	var conds []exp.Expression
	if f.MinGroupVisits != nil {
		conds = append(conds, goqu.COALESCE(goqu.SUM(goqu.I("p.total_visits")), 0).Gte(*f.MinGroupVisits))
	}
	if f.MinGroupSites != nil {
		conds = append(conds, goqu.L(groupSitesExpr).Gte(*f.MinGroupSites))
	}
	return conds
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return entities.Float(v.Float64)
}
