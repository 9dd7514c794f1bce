package sqlinline

const QJobEnqueue = `--sql ce7f26af-21c1-4de1-b15b-d12f47d4424e
with inserted as (
    insert into jobs (id, kind, user_id, lane, payload, status, attempts, reservation_id, cost, origin_country, available_at, created_at, updated_at)
    values ($1::uuid, $2::text, $3::text, $4::text, coalesce($5::jsonb, '{}'::jsonb), 'queued', 0, nullif($6::text, '')::uuid, $7::bigint, $8::text, now(), now(), now())
    returning lane, available_at, created_at
)
select i.available_at, i.created_at
from inserted i,
     lateral (select pg_notify('jobs_enqueued', i.lane)) n;
`

const QJobClaimNext = `--sql ab35eb15-ff8f-4653-aadf-3f8224da0e93
with next_job as (
    select id
    from jobs
    where lane = $1::text
      and status = 'queued'
      and available_at <= now()
    order by created_at asc, id asc
    for update skip locked
    limit 1
)
update jobs j
set status = 'active',
    attempts = j.attempts + 1,
    lease_owner = $2::text,
    lease_expires_at = now() + make_interval(secs => $3::double precision),
    updated_at = now()
from next_job
where j.id = next_job.id
returning j.id::text, j.kind, j.user_id, j.lane, j.payload, j.status, j.attempts, coalesce(j.reservation_id::text, ''), j.cost,
          j.origin_country, j.result_url, j.result_width, j.result_height, j.error_message, j.lease_owner,
          j.lease_expires_at, j.available_at, j.created_at, j.updated_at;
`

const QJobComplete = `--sql 8ab55afb-f758-44da-9896-3316a251e0a4
update jobs
set status = 'completed',
    result_url = $3::text,
    result_width = $4::int,
    result_height = $5::int,
    error_message = '',
    lease_owner = '',
    lease_expires_at = null,
    updated_at = now()
where id = $1::uuid
  and status = 'active'
  and lease_owner = $2::text;
`

const QJobFail = `--sql 6b13239a-d829-4721-a4e0-ba4614173474
update jobs
set status = 'failed',
    error_message = $3::text,
    lease_owner = '',
    lease_expires_at = null,
    updated_at = now()
where id = $1::uuid
  and status = 'active'
  and lease_owner = $2::text;
`

const QJobRequeue = `--sql 1bc4cb7e-6260-414a-a6ec-0436b8b60cf5
update jobs
set status = 'queued',
    available_at = $3::timestamptz,
    error_message = $4::text,
    lease_owner = '',
    lease_expires_at = null,
    updated_at = now()
where id = $1::uuid
  and status = 'active'
  and lease_owner = $2::text;
`

const QJobGet = `--sql 94bd23a7-0fee-4c88-9a46-7ecaf6609ef5
select id::text, kind, user_id, lane, payload, status, attempts, coalesce(reservation_id::text, ''), cost,
       origin_country, result_url, result_width, result_height, error_message, lease_owner,
       lease_expires_at, available_at, created_at, updated_at
from jobs
where id = $1::uuid;
`

const QJobReleaseExpired = `--sql dcf00f79-b9fc-40b7-bc30-36d4935ca6d5
update jobs
set status = 'queued',
    lease_owner = '',
    lease_expires_at = null,
    available_at = $1::timestamptz,
    updated_at = now()
where status = 'active'
  and lease_expires_at <= $1::timestamptz;
`

const QJobFailExhausted = `--sql 5e0d7b1c-8a43-4f6e-9c27-3b9f1d6e2a84
update jobs
set status = 'failed',
    error_message = $3::text,
    lease_owner = '',
    lease_expires_at = null,
    updated_at = now()
where status = 'active'
  and lease_expires_at <= $1::timestamptz
  and attempts >= $2::int
returning id::text, kind, user_id, lane, payload, status, attempts, coalesce(reservation_id::text, ''), cost,
          origin_country, result_url, result_width, result_height, error_message, lease_owner,
          lease_expires_at, available_at, created_at, updated_at;
`

const QJobLaneDepths = `--sql b321f87f-9453-4fd7-a481-4fd2ddcaebc6
select lane, count(*)
from jobs
where status = 'queued'
group by lane;
`
