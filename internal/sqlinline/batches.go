package sqlinline

const QBatchCreate = `--sql 0fd6e454-bf5f-44b6-bf79-4360160b815b
with project as (
    insert into batch_projects (id, user_id, name, kind, params, total_count, completed_count, failed_count, status, created_at, updated_at)
    values ($1::uuid, $2::text, $3::text, $4::text, coalesce($5::jsonb, '{}'::jsonb), cardinality($6::text[]), 0, 0, 'processing', now(), now())
    returning id, user_id, created_at
)
insert into batch_images (id, batch_id, user_id, source_ref, position, status, created_at)
select u.id::uuid, p.id, p.user_id, u.source_ref, u.position, 'pending', p.created_at
from project p,
     unnest($7::text[], $6::text[]) with ordinality as u(id, source_ref, position);
`

const QBatchGetProject = `--sql f5e4c0de-8c96-4558-b934-354da36ad6ea
select id::text, user_id, name, kind, params, total_count, completed_count, failed_count, status, notified_at, created_at, updated_at
from batch_projects
where id = $1::uuid;
`

const QBatchClaimNextPending = `--sql 0ef88782-c2cd-4053-b6c3-198b96aca5c9
with next_unit as (
    select id
    from batch_images
    where batch_id = $1::uuid
      and status = 'pending'
    order by created_at asc, position asc
    for update skip locked
    limit 1
)
update batch_images b
set status = 'processing',
    claimed_at = now()
from next_unit
where b.id = next_unit.id
  and b.status = 'pending'
returning b.id::text, b.batch_id::text, b.user_id, b.source_ref, b.result_url, b.status, b.error_message, b.label, coalesce(b.reservation_id::text, ''), b.claimed_at, b.completed_at, b.created_at;
`

const QBatchAttachReservation = `--sql 96de232a-bb8d-4b1a-8143-c0430872ba51
update batch_images
set reservation_id = nullif($2::text, '')::uuid
where id = $1::uuid;
`

const QBatchReleaseUnit = `--sql 729979cc-0909-4956-b09e-e340c08d79e0
update batch_images
set status = 'pending',
    claimed_at = null,
    reservation_id = null
where id = $1::uuid
  and status = 'processing';
`

const QBatchCompleteUnit = `--sql 2f0f9528-347c-416e-a7a6-a47a732ac165
update batch_images
set status = 'completed',
    result_url = $2::text,
    label = $3::text,
    completed_at = now()
where id = $1::uuid
  and status = 'processing';
`

const QBatchFailUnit = `--sql 70c48026-6647-4643-81e4-8845a894536b
update batch_images
set status = 'failed',
    error_message = $2::text,
    completed_at = now()
where id = $1::uuid
  and status = 'processing';
`

const QBatchIncrementCounters = `--sql db212925-c861-444d-9d17-d8f48fc1b5c0
update batch_projects
set completed_count = completed_count + $2::int,
    failed_count = failed_count + $3::int,
    updated_at = now()
where id = $1::uuid
returning id::text, user_id, name, kind, params, total_count, completed_count, failed_count, status, notified_at, created_at, updated_at;
`

const QBatchMarkCompleted = `--sql a9553c0d-a91f-4f36-be46-af69d41ee879
update batch_projects
set status = 'completed',
    notified_at = now(),
    updated_at = now()
where id = $1::uuid
  and status = 'processing'
  and completed_count + failed_count >= total_count;
`

const QBatchListUnits = `--sql 55cf35e3-6bce-4004-acb2-a4cf476df989
select id::text, batch_id::text, user_id, source_ref, result_url, status, error_message, label, coalesce(reservation_id::text, ''), claimed_at, completed_at, created_at
from batch_images
where batch_id = $1::uuid
order by created_at asc, position asc;
`

const QBatchStaleUnits = `--sql f1363bb7-5ae3-4b34-974a-c6165f8ca4b6
select id::text, batch_id::text, user_id, source_ref, result_url, status, error_message, label, coalesce(reservation_id::text, ''), claimed_at, completed_at, created_at
from batch_images
where status = 'processing'
  and claimed_at < $1::timestamptz
order by claimed_at asc
limit $2::int;
`
