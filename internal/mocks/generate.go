package mocks

//go:generate mockery --name Sink --srcpkg github.com/aevon-lab/cohort/internal/core/storage --output ./storage --outpkg storagemocks
//go:generate mockery --name RowSource --srcpkg github.com/aevon-lab/cohort/internal/core/storage --output ./storage --outpkg storagemocks
//go:generate mockery --name RunStore --srcpkg github.com/aevon-lab/cohort/internal/core/storage --output ./storage --outpkg storagemocks
